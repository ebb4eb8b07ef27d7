package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

func readPidFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parsing pidfile %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("pidfile %s holds invalid pid %d", path, pid)
	}
	return pid, nil
}

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// stopEngineFor sends SIGTERM to engine processes whose command line
// names both the engine binary and the job's local path. Scanning /proc
// reaches syncs started by other drivesync processes, the daemon
// included.
func stopEngineFor(binary, localPath string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}

	base := filepath.Base(binary)
	clean := filepath.Clean(localPath)
	stopped := 0

	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join("/proc", ent.Name(), "cmdline"))
		if err != nil {
			continue
		}
		args := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if len(args) == 0 || filepath.Base(args[0]) != base {
			continue
		}
		match := false
		for _, arg := range args[1:] {
			if filepath.Clean(arg) == clean {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if err := unix.Kill(pid, unix.SIGTERM); err == nil {
			stopped++
		}
	}
	return stopped, nil
}

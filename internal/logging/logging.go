// Package logging provides component loggers for drivesync.
//
// Each component gets a *log.Logger with a "[name] " prefix writing to both
// stderr and a size-rotated log file in the user cache directory. Debug
// loggers are silenced unless debug logging is enabled.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	fileOut io.Writer
	debugOn bool
)

// Setup configures the shared log file sink. logDir is created if missing;
// an empty logDir keeps output on stderr only. Safe to call once at startup;
// loggers created before Setup write to stderr only.
func Setup(logDir string, debug bool) {
	mu.Lock()
	defer mu.Unlock()

	debugOn = debug
	if logDir == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("logging: cannot create log directory %s: %v", logDir, err)
		return
	}
	fileOut = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "drivesync.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
}

// New returns a logger for the named component, e.g. "[monitor] ".
func New(component string) *log.Logger {
	return log.New(output(), "["+component+"] ", log.LstdFlags)
}

// NewDebug returns a logger that discards output unless debug logging
// was enabled via Setup.
func NewDebug(component string) *log.Logger {
	mu.Lock()
	on := debugOn
	mu.Unlock()
	if !on {
		return log.New(io.Discard, "", 0)
	}
	return log.New(output(), "["+component+"] debug: ", log.LstdFlags)
}

func output() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if fileOut == nil {
		return os.Stderr
	}
	return io.MultiWriter(os.Stderr, fileOut)
}

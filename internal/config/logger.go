package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// A fresh log is rotated in once the previous one crosses this size.
const maxLogSize = 5 << 20

// Logger writes timestamped log lines to ~/.local/share/matty/matty.log.
// The TUI owns the terminal, so diagnostics go to a file instead of stderr.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

func logFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "matty.log"), nil
}

// LogPath returns the log file path (for display and debugging).
func LogPath() string {
	p, err := logFilePath()
	if err != nil {
		return ""
	}
	return p
}

// NewLogger opens the append-only log, rotating an oversized one to
// matty.log.old first. A logger with no backing file discards writes.
func NewLogger() *Logger {
	l := &Logger{}

	p, err := logFilePath()
	if err != nil {
		return l
	}
	if info, err := os.Stat(p); err == nil && info.Size() > maxLogSize {
		os.Rename(p, p+".old")
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return l
	}

	l.file = f
	return l
}

// Printf writes a timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(l.file, ts+" "+format+"\n", args...)
}

// Scope returns a Printf-compatible function that prefixes every line
// with a component name, for handing to subsystems that take a logf.
func (l *Logger) Scope(name string) func(format string, args ...any) {
	return func(format string, args ...any) {
		l.Printf(name+": "+format, args...)
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

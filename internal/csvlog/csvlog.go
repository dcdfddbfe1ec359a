// Package csvlog appends timestamped status rows to a CSV file.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// FileName is the log file created in the documents directory.
	FileName = "devices-monitor-log.csv"

	// TimestampLayout formats the first column in local time.
	TimestampLayout = "2006-01-02 15:04:05"
)

// Header is the first row of a new log file.
var Header = []string{"Timestamp", "Message"}

// Log is an append-only CSV log. The file is opened on every Append, so a
// Log that never appends never touches the filesystem.
type Log struct {
	Path string
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{Path: path}
}

// Append writes one row, creating the file and its header when needed.
func (l *Log) Append(ts time.Time, msg string) error {
	if l.Path == "" {
		return fmt.Errorf("log file path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", l.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file %s: %w", l.Path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("failed to write log header: %w", err)
		}
	}
	if err := w.Write([]string{ts.Local().Format(TimestampLayout), msg}); err != nil {
		return fmt.Errorf("failed to write log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write log row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// DocumentsDir returns $XDG_DOCUMENTS_DIR, or ~/Documents when unset.
func DocumentsDir() (string, error) {
	if dir := os.Getenv("XDG_DOCUMENTS_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate documents directory: %w", err)
	}
	return filepath.Join(home, "Documents"), nil
}

// DefaultPath returns the log file path inside the documents directory.
func DefaultPath() (string, error) {
	dir, err := DocumentsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

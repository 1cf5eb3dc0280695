package migrate

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Journal is the manager's durable, append-only log sink. Every line has
// the form "[<ISO8601>] <message>" and is mirrored to a console writer.
// The journal is never truncated by the manager.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	console io.Writer
	now     func() time.Time
}

// OpenJournal opens (or creates) the journal file at path in append mode.
// Lines are mirrored to console; pass nil to suppress mirroring.
func OpenJournal(path string, console io.Writer) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if console == nil {
		console = io.Discard
	}
	return &Journal{file: f, console: console, now: time.Now}, nil
}

// Log appends one formatted line to the journal and the console.
// A nil Journal discards the line, so callers never need to guard.
func (j *Journal) Log(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] %s\n", ts, fmt.Sprintf(format, args...))

	if j.file != nil {
		// Best effort: a full disk must not turn a log line into a
		// migration failure.
		_, _ = j.file.WriteString(line)
	}
	_, _ = io.WriteString(j.console, line)
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	if j == nil || j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

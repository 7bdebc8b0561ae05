package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResultPath returns the result file paired with a queue file: result-<name> next to it
func ResultPath(queuePath string) string {
	return filepath.Join(filepath.Dir(queuePath), "result-"+filepath.Base(queuePath))
}

// ResultSink appends one line per finished object to the result file
type ResultSink struct {
	path string
	mu   sync.Mutex
}

// NewResultSink creates a sink writing to path
func NewResultSink(path string) *ResultSink {
	return &ResultSink{path: path}
}

// Path returns the result file location
func (s *ResultSink) Path() string {
	return s.path
}

// Append writes line followed by a newline and flushes it to disk
func (s *ResultSink) Append(line fmt.Stringer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open result file: %w", err)
	}

	if _, err := f.WriteString(line.String() + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append result: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync result file: %w", err)
	}
	return f.Close()
}

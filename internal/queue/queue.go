package queue

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Queue is the persisted list of object ids still awaiting submission.
// Ids are taken from the end of the list.
type Queue struct {
	path  string
	items []string
	mu    sync.Mutex
}

// Load reads one id per line, skipping blank lines
func Load(path string) (*Queue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			items = append(items, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}

	return &Queue{path: path, items: items}, nil
}

// Path returns the queue file location
func (q *Queue) Path() string {
	return q.path
}

// Len returns the number of ids left
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the remaining ids in file order
func (q *Queue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.items...)
}

// Peek returns the id that Pop would remove
func (q *Queue) Peek() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	return q.items[len(q.items)-1], true
}

// Pop removes and returns the last id
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return id, true
}

// Persist rewrites the queue file with the remaining ids. The file is
// replaced by rename so a crash never leaves it truncated.
func (q *Queue) Persist() error {
	q.mu.Lock()
	content := strings.Join(q.items, "\n")
	q.mu.Unlock()

	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(q.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close queue file: %w", err)
	}

	if info, err := os.Stat(q.path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}

	if err := os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

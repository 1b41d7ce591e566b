// Package ledger persists completed document results as an append-only JSONL
// file and rebuilds the set of completed ids at startup, enabling safe
// re-runs after a crash or interruption.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// LoadCompleted reads a result ledger and returns the set of document ids it
// contains. A missing file yields an empty set; malformed lines and records
// without an id are skipped. Only a present-but-unreadable file is an error.
func LoadCompleted(path string) (map[string]struct{}, error) {
	completed := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return completed, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var record struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID != "" {
			completed[record.ID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return completed, nil
}

// Writer appends one JSON record per line to a ledger file. Each append is a
// single write, so concurrent extractions never interleave partial records.
type Writer struct {
	mu sync.Mutex
	f  *os.File
}

// NewWriter opens (or creates) the ledger at path for appending. With
// overwrite set, any existing content is truncated instead of resumed.
func NewWriter(path string, overwrite bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger for writing: %w", err)
	}
	return &Writer{f: f}, nil
}

// Append serializes record as one JSONL line.
func (w *Writer) Append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSink appends events to a JSONL file and answers queries by linear
// scan. Good enough for single-node deployments; swap in the postgres sink
// for anything bigger.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLSink creates or opens the JSONL file at path, creating parent
// directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{path: path, f: f}, nil
}

func (s *JSONLSink) Record(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err = s.f.Write(data)
	return err
}

// Query reads the whole file and filters, newest first.
func (s *JSONLSink) Query(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.Lock()
	if s.f != nil {
		_ = s.f.Sync()
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := bytes.Split(data, []byte{'\n'})
	out := make([]Event, 0)
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(lines[i], &e); err != nil {
			continue
		}
		if f.Principal != "" && e.Principal != f.Principal {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

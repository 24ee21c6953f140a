package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
)

// FileSink appends every event as a JSON line. Used as a local audit trail.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileSink) Name() string { return "audit_file" }

func (s *FileSink) Publish(_ context.Context, b engine.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range Events(b, time.Now()) {
		if err := s.enc.Encode(ev); err != nil {
			return fmt.Errorf("append %s event: %w", ev.Type, err)
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

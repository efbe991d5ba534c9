package main

import (
	"context"
	"sync"
	"testing"

	"github.com/sells-group/pin-ingest/internal/config"
	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/submit"
)

// recordingSink is a BulkCreator that accepts everything unless fn says
// otherwise.
type recordingSink struct {
	mu     sync.Mutex
	fn     func(drafts []model.PinDraft) (submit.BulkResult, error)
	drafts []model.PinDraft
}

func (s *recordingSink) BulkCreate(_ context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, drafts...)
	if s.fn != nil {
		return s.fn(drafts)
	}
	return submit.BulkResult{Created: len(drafts)}, nil
}

// withConfig installs a default config for the duration of the test.
func withConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Geocode: config.GeocodeConfig{Concurrency: 2, RateLimit: 100, TimeoutSecs: 5},
		Submit:  config.SubmitConfig{ChunkSize: 50, Sink: config.SinkAPI},
		Ingest:  config.IngestConfig{StrictContact: true, Country: "Canada"},
		Source:  config.SourceConfig{TimeoutSecs: 5, MaxAttempts: 1, MaxBytes: 1 << 20},
		Server:  config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}

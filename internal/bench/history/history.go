// Package history keeps finished benchmark runs in Redis so they can be
// compared across invocations.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/bench/report"
	"github.com/edgecomet/httpbench/internal/common/redis"
)

// Settings are the effective inputs of a run
type Settings struct {
	MaxWorkers        int     `json:"max_workers"`
	RequestsPerWorker int     `json:"requests_per_worker"`
	TimeoutSeconds    float64 `json:"timeout_seconds"`
}

// Record is one stored run
type Record struct {
	ID          string                 `json:"id"`
	Host        string                 `json:"host"`
	Settings    Settings               `json:"settings"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Report      report.BenchmarkReport `json:"report"`
}

// NewRecord creates a record for run id, the same id used in the run's logs
func NewRecord(id, host string, startedAt time.Time) *Record {
	return &Record{
		ID:        id,
		Host:      host,
		StartedAt: startedAt.UTC(),
	}
}

// Store persists records under per-run keys and an index list capped at maxRuns
type Store struct {
	client  *redis.Client
	keys    *redis.KeyGenerator
	maxRuns int
	logger  *zap.Logger
}

// NewStore creates a Store
func NewStore(client *redis.Client, maxRuns int, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxRuns <= 0 {
		return nil, fmt.Errorf("max runs must be positive, got %d", maxRuns)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		client:  client,
		keys:    redis.NewKeyGenerator(""),
		maxRuns: maxRuns,
		logger:  logger,
	}, nil
}

// Save stores rec and drops the records pushed out of the index
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	if err := s.client.Set(ctx, s.keys.RunKey(rec.ID), data, 0); err != nil {
		return fmt.Errorf("failed to store run %s: %w", rec.ID, err)
	}

	evicted, err := s.client.PushCapped(ctx, s.keys.RunsIndexKey(), rec.ID, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to index run %s: %w", rec.ID, err)
	}

	if len(evicted) > 0 {
		stale := make([]string, 0, len(evicted))
		for _, id := range evicted {
			stale = append(stale, s.keys.RunKey(id))
		}
		if err := s.client.Del(ctx, stale...); err != nil {
			s.logger.Warn("Failed to delete evicted runs", zap.Int("count", len(stale)), zap.Error(err))
		}
	}

	s.logger.Debug("Run stored",
		zap.String("run_id", rec.ID),
		zap.Int("evicted", len(evicted)))

	return nil
}

// Get loads one record; it returns nil, nil when the run is unknown
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.keys.RunKey(id))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &rec, nil
}

// Recent returns up to n records, newest first. Missing records are skipped.
func (s *Store) Recent(ctx context.Context, n int) ([]*Record, error) {
	if n <= 0 {
		return nil, nil
	}

	ids, err := s.client.LRange(ctx, s.keys.RunsIndexKey(), 0, int64(n-1))
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

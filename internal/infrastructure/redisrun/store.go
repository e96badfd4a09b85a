// Package redisrun is the reference workerpool.RunStorage implementation:
// a Redis-backed record of each line's start/end time and outcome, exercised
// by demoflow.Executor through internal/api/http.
package redisrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowline/linepool/internal/infrastructure/workerpool"
	"github.com/flowline/linepool/redis"
	"go.uber.org/zap"
)

const runKeyPrefix = "linepool:run:"

// record is what gets stored at runKeyPrefix+runID, updated in place by
// RecordStart then RecordEnd.
type record struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// Store implements workerpool.RunStorage on top of the pack's own Redis
// client wrapper (ground: internal/infrastructure/redis's ChannelRepository
// usage pattern — NewClient, JSON-marshaled values, a fixed key prefix).
type Store struct {
	client *redis.Client
	log    *zap.Logger
}

func NewStore(addr string, db int, log *zap.Logger) *Store {
	log = log.Named("redisrun")
	return &Store{client: redis.NewClient(addr, db, log), log: log}
}

func keyFor(runID string) string { return runKeyPrefix + runID }

func (s *Store) RecordStart(runID string, at time.Time) error {
	rec := record{RunID: runID, StartedAt: at, Status: "running"}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisrun: marshal start: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, keyFor(runID), payload, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redisrun: record start: %w", err)
	}
	return nil
}

func (s *Store) RecordEnd(runID string, at time.Time, runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var rec record
	if raw, err := s.client.Get(ctx, keyFor(runID)).Bytes(); err == nil {
		_ = json.Unmarshal(raw, &rec)
	}
	rec.RunID = runID
	rec.EndedAt = at
	if runErr != nil {
		rec.Status = "failed"
		rec.Error = runErr.Error()
	} else {
		rec.Status = "completed"
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisrun: marshal end: %w", err)
	}
	if err := s.client.Set(ctx, keyFor(runID), payload, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redisrun: record end: %w", err)
	}
	return nil
}

var _ workerpool.RunStorage = (*Store)(nil)

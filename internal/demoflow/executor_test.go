package demoflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStorage struct {
	started []string
	ended   []string
	lastErr error
}

func (s *recordingStorage) RecordStart(runID string, at time.Time) error {
	s.started = append(s.started, runID)
	return nil
}

func (s *recordingStorage) RecordEnd(runID string, at time.Time, err error) error {
	s.ended = append(s.ended, runID)
	s.lastErr = err
	return nil
}

func TestExecutorEvaluatesLineAndRecordsStorage(t *testing.T) {
	storage := &recordingStorage{}
	factory := NewFactory(Config{Variables: map[string]float64{"x": 10}})
	executor, err := factory.Create(storage)
	require.NoError(t, err)

	payload, err := json.Marshal(Line{RunID: "run-1", Expression: "x * 2"})
	require.NoError(t, err)

	out, err := executor.Execute(context.Background(), payload)
	require.NoError(t, err)

	var result LineResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 20.0, result.Value)
	assert.Equal(t, []string{"run-1"}, storage.started)
	assert.Equal(t, []string{"run-1"}, storage.ended)
	assert.NoError(t, storage.lastErr)
}

func TestExecutorPropagatesEvaluationError(t *testing.T) {
	storage := &recordingStorage{}
	factory := NewFactory(Config{})
	executor, err := factory.Create(storage)
	require.NoError(t, err)

	payload, err := json.Marshal(Line{RunID: "run-2", Expression: "1 / 0"})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), payload)
	require.Error(t, err)
	assert.Error(t, storage.lastErr)
}

func TestFactorySnapshotRoundTrip(t *testing.T) {
	factory := NewFactory(Config{Variables: map[string]float64{"a": 1, "b": 2}})

	data, err := factory.Snapshot()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.gob")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	storage := &recordingStorage{}
	executor, err := factory.CreateFromSnapshot(path, storage)
	require.NoError(t, err)

	payload, err := json.Marshal(Line{RunID: "run-3", Expression: "a + b"})
	require.NoError(t, err)

	out, err := executor.Execute(context.Background(), payload)
	require.NoError(t, err)

	var result LineResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 3.0, result.Value)
}

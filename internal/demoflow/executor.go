// Package demoflow is a stand-in for the real flow DSL/interpreter
// (explicitly out of core scope, SPEC_FULL.md §1/§6): it evaluates one
// arithmetic expression per line against a fixed variable set, just enough
// to exercise workerpool.Executor/ExecutorFactory/Snapshotter end to end.
package demoflow

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flowline/linepool/internal/infrastructure/workerpool"
)

// Config is the serializable construction input a Factory rebuilds
// identically from in any process — the demoflow analogue of promptflow's
// flow_create_kwargs (flow path, connections, working directory).
type Config struct {
	Variables map[string]float64
}

// Line is the JSON payload carried in a workerpool.Request.
type Line struct {
	RunID      string `json:"run_id"`
	Expression string `json:"expression"`
}

// LineResult is the JSON payload carried back in a workerpool.Result.
type LineResult struct {
	Value float64 `json:"value"`
}

// Factory builds Executors bound to a fixed variable set. It implements
// workerpool.Snapshotter so PreloadedForkManager can warm that set once
// instead of every child re-validating it.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) *Factory { return &Factory{cfg: cfg} }

// Create builds an Executor directly from cfg — the cold-spawn path, and
// the path every Snapshot-less factory always takes.
func (f *Factory) Create(storage workerpool.RunStorage) (workerpool.Executor, error) {
	return newExecutor(f.cfg.Variables, storage)
}

// Snapshot gob-encodes the variable set for a warm-started child to read
// instead of receiving it via Config again (Config itself never crosses a
// process boundary — see reexec.go's doc comment on why factories are
// rebuilt, not passed, across exec).
func (f *Factory) Snapshot() ([]byte, error) {
	return gobEncode(f.cfg.Variables)
}

// CreateFromSnapshot rebuilds an Executor from a warm snapshot file instead
// of Create's in-memory path.
func (f *Factory) CreateFromSnapshot(path string, storage workerpool.RunStorage) (workerpool.Executor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("demoflow: read snapshot: %w", err)
	}
	var vars map[string]float64
	if err := gobDecode(data, &vars); err != nil {
		return nil, fmt.Errorf("demoflow: decode snapshot: %w", err)
	}
	return newExecutor(vars, storage)
}

// Executor evaluates one expression per Execute call against a fixed
// variable set, recording start/end through storage.
type Executor struct {
	vars    map[string]float64
	storage workerpool.RunStorage
}

func newExecutor(vars map[string]float64, storage workerpool.RunStorage) (*Executor, error) {
	if vars == nil {
		vars = map[string]float64{}
	}
	return &Executor{vars: vars, storage: storage}, nil
}

func (e *Executor) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	var line Line
	if err := json.Unmarshal(payload, &line); err != nil {
		return nil, fmt.Errorf("demoflow: invalid line payload: %w", err)
	}

	start := time.Now()
	if e.storage != nil {
		_ = e.storage.RecordStart(line.RunID, start)
	}

	value, err := newEvaluator(line.Expression, e.vars).evaluate()

	if e.storage != nil {
		_ = e.storage.RecordEnd(line.RunID, time.Now(), err)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(LineResult{Value: value})
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

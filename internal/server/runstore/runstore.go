// Package runstore layers live fan-out on top of the durable run/event
// tables. All run state mutation goes through this narrow API.
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentkitdev/agentkit/internal/server/db"
	"github.com/agentkitdev/agentkit/internal/server/eventbus"
	"github.com/agentkitdev/agentkit/internal/server/metrics"
)

// Store owns run rows, their append-only event logs, and the live
// subscription registry. Events for one run are serialized so that history
// order always equals append order; unrelated runs proceed independently.
type Store struct {
	db     db.Store
	bus    eventbus.Bus
	logger *slog.Logger

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// New wires the durable store and the in-process bus together.
func New(store db.Store, bus eventbus.Bus, logger *slog.Logger) *Store {
	return &Store{
		db:       store,
		bus:      bus,
		logger:   logger,
		runLocks: make(map[string]*sync.Mutex),
	}
}

// CreateRun allocates a fresh run id and persists a pending row.
func (s *Store) CreateRun(ctx context.Context, inputs map[string]any) (string, error) {
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode run inputs: %w", err)
	}

	run := &db.Run{
		ID:     uuid.NewString(),
		Status: db.RunStatusPending,
		Inputs: encoded,
	}
	if err := s.db.Queries().Runs().Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	metrics.RunsStarted.Inc()
	return run.ID, nil
}

// AppendEvent persists one event and pushes the stored row to every live
// subscriber of the run. The per-run lock makes the durable write
// happen-before the fan-out and keeps arrival order authoritative even with
// multiple producers appending to the same run.
func (s *Store) AppendEvent(ctx context.Context, runID string, typ db.EventType, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	lock := s.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	event := &db.Event{RunID: runID, Type: typ, Payload: encoded}
	if _, err := s.db.Queries().Events().Append(ctx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	metrics.EventsAppended.WithLabelValues(string(typ)).Inc()

	if err := s.bus.Publish(ctx, eventbus.RunTopic(runID), *event); err != nil {
		s.logger.Warn("event fan-out", "run_id", runID, "error", err)
	}
	return nil
}

// FinishRun transitions the run to a terminal status and stamps the finish
// time. Calling it twice is tolerated; the last write wins.
func (s *Store) FinishRun(ctx context.Context, runID string, status db.RunStatus) error {
	if err := s.db.Queries().Runs().Finish(ctx, runID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	metrics.RunsFinished.WithLabelValues(string(status)).Inc()
	s.releaseRunLock(runID)
	return nil
}

// GetRun returns the run row, or nil when the id is unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (*db.Run, error) {
	return s.db.Queries().Runs().Get(ctx, runID)
}

// ListRuns returns all runs in creation order.
func (s *Store) ListRuns(ctx context.Context) ([]db.Run, error) {
	return s.db.Queries().Runs().List(ctx)
}

// Events returns the durable history for a run in append order. The result
// is a snapshot; appends racing with the call are not required to appear.
func (s *Store) Events(ctx context.Context, runID string) ([]db.Event, error) {
	return s.db.Queries().Events().ListByRun(ctx, runID)
}

// Subscribe registers ch for the run's live feed. Payloads are db.Event
// values. The returned function deregisters the channel; calling it more
// than once is harmless.
func (s *Store) Subscribe(runID string, ch chan<- any) (func(), error) {
	unsubscribe, err := s.bus.Subscribe(eventbus.RunTopic(runID), ch)
	if err != nil {
		return nil, err
	}
	metrics.LiveSubscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			metrics.LiveSubscribers.Dec()
		})
	}, nil
}

// SaveUpload records bookkeeping for a persisted upload and returns its id.
func (s *Store) SaveUpload(ctx context.Context, path, originalName, mime string, size int64) (string, error) {
	upload := &db.Upload{
		ID:           uuid.NewString(),
		Path:         path,
		OriginalName: originalName,
		MIME:         mime,
		Size:         size,
	}
	if err := s.db.Queries().Uploads().Create(ctx, upload); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return upload.ID, nil
}

// ListUploads returns recorded uploads, newest first.
func (s *Store) ListUploads(ctx context.Context) ([]db.Upload, error) {
	return s.db.Queries().Uploads().List(ctx)
}

func (s *Store) runLock(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.runLocks[runID]
	if !ok {
		lock = &sync.Mutex{}
		s.runLocks[runID] = lock
	}
	return lock
}

// releaseRunLock drops the run's append lock once the run is terminal, so
// the registry does not grow with every run the daemon ever served.
// Acquiring the lock first lets any in-flight append finish before the
// entry goes away.
func (s *Store) releaseRunLock(runID string) {
	s.mu.Lock()
	lock, ok := s.runLocks[runID]
	s.mu.Unlock()
	if !ok {
		return
	}

	lock.Lock()
	s.mu.Lock()
	delete(s.runLocks, runID)
	s.mu.Unlock()
	lock.Unlock()
}

package db

import (
	"context"
	"time"
)

// RunStatus enumerates the lifecycle phases tracked for agent runs.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// EventType enumerates the typed records appended to a run's log.
type EventType string

const (
	EventTypeStatus    EventType = "status"
	EventTypeToken     EventType = "token"
	EventTypeToolStart EventType = "tool_start"
	EventTypeToolEnd   EventType = "tool_end"
	EventTypeFinal     EventType = "final"
	EventTypeError     EventType = "error"
)

// Terminal reports whether the event type ends a run's log.
func (t EventType) Terminal() bool {
	return t == EventTypeFinal || t == EventTypeError
}

// Run models the database representation of one background agent invocation.
type Run struct {
	ID         string
	Status     RunStatus
	Inputs     []byte
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Event is a single timestamped record in a run's append-only log. Seq is
// assigned by storage and is strictly increasing per run.
type Event struct {
	Seq     int64
	RunID   string
	Type    EventType
	Payload []byte
	TS      time.Time
}

// Upload records a persisted file received from a client.
type Upload struct {
	ID           string
	Path         string
	OriginalName string
	MIME         string
	Size         int64
	CreatedAt    time.Time
}

// Store describes the persistence surface consumed by the run store.
type Store interface {
	Close(ctx context.Context) error
	Queries() Queries
	WithTx(ctx context.Context, fn func(Queries) error) error
}

// Queries exposes repository accessors bound to a specific connection scope
// (either the root connection or a transaction).
type Queries interface {
	Runs() RunRepository
	Events() EventRepository
	Uploads() UploadRepository
}

// RunRepository manages run rows. Get returns nil when the id is unknown.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context) ([]Run, error)
	Finish(ctx context.Context, id string, status RunStatus, finishedAt time.Time) error
}

// EventRepository manages the append-only event log.
type EventRepository interface {
	Append(ctx context.Context, event *Event) (int64, error)
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}

// UploadRepository records upload bookkeeping.
type UploadRepository interface {
	Create(ctx context.Context, upload *Upload) error
	List(ctx context.Context) ([]Upload, error)
}

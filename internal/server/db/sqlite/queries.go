package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentkitdev/agentkit/internal/server/db"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// executor abstracts *sql.DB and *sql.Tx for shared query logic.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	exec executor
}

var _ db.Queries = (*queries)(nil)

func (q *queries) Runs() db.RunRepository {
	return &runRepository{exec: q.exec}
}

func (q *queries) Events() db.EventRepository {
	return &eventRepository{exec: q.exec}
}

func (q *queries) Uploads() db.UploadRepository {
	return &uploadRepository{exec: q.exec}
}

type runRepository struct {
	exec executor
}

var _ db.RunRepository = (*runRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *runRepository) Create(ctx context.Context, run *db.Run) error {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := r.exec.ExecContext(
		ctx,
		`INSERT INTO runs (id, status, inputs, started_at, finished_at) VALUES (?, ?, ?, ?, NULL);`,
		run.ID,
		string(run.Status),
		nullableBytes(run.Inputs),
		startedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	run.StartedAt = startedAt
	return nil
}

func (r *runRepository) Get(ctx context.Context, id string) (*db.Run, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT id, status, inputs, started_at, finished_at FROM runs WHERE id = ?;`, id)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) List(ctx context.Context) ([]db.Run, error) {
	rows, err := r.exec.QueryContext(ctx, `SELECT id, status, inputs, started_at, finished_at FROM runs ORDER BY started_at ASC;`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var result []db.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func (r *runRepository) Finish(ctx context.Context, id string, status db.RunStatus, finishedAt time.Time) error {
	if _, err := r.exec.ExecContext(ctx, `UPDATE runs SET status = ?, finished_at = ? WHERE id = ?;`, string(status), finishedAt.UTC(), id); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

type eventRepository struct {
	exec executor
}

var _ db.EventRepository = (*eventRepository)(nil)

func (r *eventRepository) Append(ctx context.Context, event *db.Event) (int64, error) {
	ts := event.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	res, err := r.exec.ExecContext(
		ctx,
		`INSERT INTO events (run_id, type, payload, ts) VALUES (?, ?, ?, ?);`,
		event.RunID,
		string(event.Type),
		nullableBytes(event.Payload),
		ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event last insert id: %w", err)
	}
	event.Seq = seq
	event.TS = ts
	return seq, nil
}

func (r *eventRepository) ListByRun(ctx context.Context, runID string) ([]db.Event, error) {
	rows, err := r.exec.QueryContext(ctx, `SELECT seq, run_id, type, payload, ts FROM events WHERE run_id = ? ORDER BY seq ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []db.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}

type uploadRepository struct {
	exec executor
}

var _ db.UploadRepository = (*uploadRepository)(nil)

func (r *uploadRepository) Create(ctx context.Context, upload *db.Upload) error {
	createdAt := upload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.exec.ExecContext(
		ctx,
		`INSERT INTO uploads (id, path, original_name, mime, size, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
		upload.ID,
		upload.Path,
		upload.OriginalName,
		upload.MIME,
		upload.Size,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	upload.CreatedAt = createdAt
	return nil
}

func (r *uploadRepository) List(ctx context.Context) ([]db.Upload, error) {
	rows, err := r.exec.QueryContext(ctx, `SELECT id, path, original_name, mime, size, created_at FROM uploads ORDER BY created_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var result []db.Upload
	for rows.Next() {
		var (
			upload     db.Upload
			createdRaw any
		)
		if err := rows.Scan(&upload.ID, &upload.Path, &upload.OriginalName, &upload.MIME, &upload.Size, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		createdAt, err := coerceTime(createdRaw)
		if err != nil {
			return nil, fmt.Errorf("parse upload created_at: %w", err)
		}
		upload.CreatedAt = createdAt
		result = append(result, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return result, nil
}

func scanRun(row rowScanner) (db.Run, error) {
	var (
		run         db.Run
		status      string
		inputsRaw   []byte
		startedRaw  any
		finishedRaw any
	)

	if err := row.Scan(&run.ID, &status, &inputsRaw, &startedRaw, &finishedRaw); err != nil {
		if err == sql.ErrNoRows {
			return db.Run{}, err
		}
		return db.Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Status = db.RunStatus(status)
	run.Inputs = append([]byte(nil), inputsRaw...)

	startedAt, err := coerceTime(startedRaw)
	if err != nil {
		return db.Run{}, fmt.Errorf("parse run started_at: %w", err)
	}
	run.StartedAt = startedAt

	if finishedRaw != nil {
		finishedAt, err := coerceTime(finishedRaw)
		if err != nil {
			return db.Run{}, fmt.Errorf("parse run finished_at: %w", err)
		}
		run.FinishedAt = &finishedAt
	}
	return run, nil
}

func scanEvent(row rowScanner) (db.Event, error) {
	var (
		event      db.Event
		eventType  string
		payloadRaw []byte
		tsRaw      any
	)

	if err := row.Scan(&event.Seq, &event.RunID, &eventType, &payloadRaw, &tsRaw); err != nil {
		if err == sql.ErrNoRows {
			return db.Event{}, err
		}
		return db.Event{}, fmt.Errorf("scan event: %w", err)
	}

	event.Type = db.EventType(eventType)
	event.Payload = append([]byte(nil), payloadRaw...)

	ts, err := coerceTime(tsRaw)
	if err != nil {
		return db.Event{}, fmt.Errorf("parse event ts: %w", err)
	}
	event.TS = ts
	return event, nil
}

func nullableBytes(v []byte) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func coerceTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp %q", v)
	case []byte:
		str := string(v)
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, str, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp %q", str)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", value)
	}
}

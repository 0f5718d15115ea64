package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/colinxiong/MURS/internal/model"

	_ "modernc.org/sqlite"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    task_id       INTEGER NOT NULL,
    action        TEXT NOT NULL,
    reason        TEXT NOT NULL,
    heap_baseline INTEGER NOT NULL,
    managed_used  INTEGER NOT NULL,
    tick          INTEGER NOT NULL,
    created_at    DATETIME NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertEvent inserts a new decision event record.
func (s *SQLiteStore) InsertEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (
			id, task_id, action, reason, heap_baseline, managed_used, tick, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, int64(e.TaskID), e.Action, e.Reason, e.HeapBaseline, e.ManagedUsed, e.Tick, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e := &model.Event{}
	var taskID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, action, reason, heap_baseline, managed_used, tick, created_at
		FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &taskID, &e.Action, &e.Reason, &e.HeapBaseline, &e.ManagedUsed, &e.Tick, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	e.TaskID = model.TaskID(taskID)
	return e, nil
}

// ListEvents returns a paginated list of events ordered by created_at DESC,
// along with the total count of all events.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit, offset int) ([]*model.Event, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, task_id, action, reason, heap_baseline, managed_used, tick, created_at
		FROM events ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		var taskID int64
		if err := rows.Scan(&e.ID, &taskID, &e.Action, &e.Reason, &e.HeapBaseline, &e.ManagedUsed, &e.Tick, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		e.TaskID = model.TaskID(taskID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}

	return events, total, nil
}

// GetEventStats returns aggregate decision statistics.
func (s *SQLiteStore) GetEventStats(ctx context.Context) (*EventStats, error) {
	stats := &EventStats{
		CountByAction: make(map[string]int),
		CountByReason: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT action, reason, COUNT(*) FROM events GROUP BY action, reason`)
	if err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var action, reason string
		var count int
		if err := rows.Scan(&action, &reason, &count); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		stats.CountByAction[action] += count
		stats.CountByReason[reason] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(tick), 0), COUNT(DISTINCT task_id) FROM events`,
	).Scan(&stats.LastTick, &stats.DistinctTasks)
	if err != nil {
		return nil, fmt.Errorf("event extremes: %w", err)
	}

	return stats, nil
}

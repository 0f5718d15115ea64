package store

import (
	"context"
	"errors"

	"github.com/colinxiong/MURS/internal/model"
)

// ErrNotFound is returned when an event is not found.
var ErrNotFound = errors.New("event not found")

// EventStats holds aggregate decision statistics.
type EventStats struct {
	Total          int            `json:"total"`
	CountByAction  map[string]int `json:"count_by_action"`
	CountByReason  map[string]int `json:"count_by_reason"`
	LastTick       uint64         `json:"last_tick"`
	DistinctTasks  int            `json:"distinct_tasks"`
}

// Store defines the persistence operations for governor decisions.
type Store interface {
	InsertEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*model.Event, int, error)
	GetEventStats(ctx context.Context) (*EventStats, error)
	Close() error
}

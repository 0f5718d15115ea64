package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colinxiong/MURS/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEvent(taskID model.TaskID, action, reason string, tick uint64) *model.Event {
	return &model.Event{
		ID:           model.NewID(),
		TaskID:       taskID,
		Action:       action,
		Reason:       reason,
		HeapBaseline: 512,
		ManagedUsed:  1024,
		Tick:         tick,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestInsertAndGetEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeEvent(7, model.ActionPause, model.ReasonPressure, 3)
	if err := s.InsertEvent(ctx, e); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	got, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.TaskID != 7 {
		t.Errorf("TaskID = %d, want 7", got.TaskID)
	}
	if got.Action != model.ActionPause || got.Reason != model.ReasonPressure {
		t.Errorf("Action/Reason = %q/%q, want pause/pressure", got.Action, got.Reason)
	}
	if got.HeapBaseline != 512 || got.ManagedUsed != 1024 {
		t.Errorf("HeapBaseline/ManagedUsed = %d/%d, want 512/1024", got.HeapBaseline, got.ManagedUsed)
	}
	if got.Tick != 3 {
		t.Errorf("Tick = %d, want 3", got.Tick)
	}
}

func TestGetEventNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEvent(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEvent(missing) err = %v, want ErrNotFound", err)
	}
}

func TestListEventsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := makeEvent(model.TaskID(i), model.ActionPause, model.ReasonSpill, uint64(i))
		e.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	events, total, err := s.ListEvents(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	// Newest first.
	if events[0].TaskID != 4 || events[1].TaskID != 3 {
		t.Errorf("page = tasks %d, %d, want 4, 3", events[0].TaskID, events[1].TaskID)
	}

	events, _, err = s.ListEvents(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListEvents offset: %v", err)
	}
	if len(events) != 1 || events[0].TaskID != 0 {
		t.Errorf("last page wrong: %+v", events)
	}
}

func TestGetEventStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserts := []*model.Event{
		makeEvent(1, model.ActionPause, model.ReasonPressure, 1),
		makeEvent(2, model.ActionPause, model.ReasonSpill, 2),
		makeEvent(1, model.ActionRelease, model.ReasonRelief, 5),
		makeEvent(2, model.ActionRelease, model.ReasonRelief, 5),
	}
	for _, e := range inserts {
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	stats, err := s.GetEventStats(ctx)
	if err != nil {
		t.Fatalf("GetEventStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByAction[model.ActionPause] != 2 {
		t.Errorf("pauses = %d, want 2", stats.CountByAction[model.ActionPause])
	}
	if stats.CountByReason[model.ReasonRelief] != 2 {
		t.Errorf("relief releases = %d, want 2", stats.CountByReason[model.ReasonRelief])
	}
	if stats.LastTick != 5 {
		t.Errorf("LastTick = %d, want 5", stats.LastTick)
	}
	if stats.DistinctTasks != 2 {
		t.Errorf("DistinctTasks = %d, want 2", stats.DistinctTasks)
	}
}

func TestGetEventStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetEventStats(context.Background())
	if err != nil {
		t.Fatalf("GetEventStats: %v", err)
	}
	if stats.Total != 0 || stats.LastTick != 0 {
		t.Errorf("empty stats = %+v, want zeroes", stats)
	}
}

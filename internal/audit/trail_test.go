package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memStorage struct {
	mu     sync.Mutex
	events []Event
}

func (s *memStorage) WriteBatch(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestTrailDrainsOnStop(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), 64)
	trail.Start()

	for i := 0; i < 10; i++ {
		trail.Log(Event{ID: fmt.Sprintf("evt-%d", i), Action: "echo", Status: "SUCCESS"})
	}
	trail.Stop()

	if got := store.count(); got != 10 {
		t.Fatalf("expected 10 events after drain, got %d", got)
	}
}

func TestTrailFlushesFullBatch(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), 256)
	trail.Start()
	defer trail.Stop()

	for i := 0; i < 100; i++ {
		trail.Log(Event{ID: fmt.Sprintf("evt-%d", i), Action: "add"})
	}

	// Полный батч уходит без ожидания тикера
	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 100 {
		if time.Now().After(deadline) {
			t.Fatalf("batch was not flushed, stored %d", store.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTrailDropsAfterStop(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), 8)
	trail.Start()
	trail.Stop()

	// Не должно паниковать записью в закрытый канал
	trail.Log(Event{ID: "late", Action: "echo"})

	if got := store.count(); got != 0 {
		t.Fatalf("expected late event to be dropped, got %d stored", got)
	}
}

func TestTrailStampsTimestamp(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), 8)
	trail.Start()

	trail.Log(Event{ID: "stamped", Action: "echo"})
	trail.Stop()

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	if store.events[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be stamped")
	}
}

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// MemoryLedger — встраиваемая реализация для dev-режима и тестов.
// Один mutex на мапу: атомарность check-and-insert в пределах процесса.
type MemoryLedger struct {
	mu      sync.Mutex
	byNonce map[string]*domain.ExecutionRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byNonce: make(map[string]*domain.ExecutionRecord),
	}
}

func (l *MemoryLedger) Lookup(_ context.Context, nonce string) (*domain.ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byNonce[nonce]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (l *MemoryLedger) InsertIfAbsent(_ context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byNonce[record.Nonce]; ok {
		cp := *existing
		return &cp, false, nil
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	cp := *record
	l.byNonce[record.Nonce] = &cp
	return record, true, nil
}

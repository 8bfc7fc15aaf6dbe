package ledger

import (
	"context"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// Ledger — граница идемпотентности ядра. Единственный разделяемый
// мутабельный ресурс — индекс nonce, и вся мутация идет через
// InsertIfAbsent.
type Ledger interface {
	// Lookup возвращает запись по nonce или (nil, nil), если ее нет
	Lookup(ctx context.Context, nonce string) (*domain.ExecutionRecord, error)

	// InsertIfAbsent атомарно вставляет запись, если nonce еще не занят.
	// Возвращает победившую запись и признак вставки: проигравший
	// конкурент получает запись победителя (inserted == false), а не ошибку.
	// Гарантия атомарности обязана сохраняться между процессами,
	// разделяющими одно хранилище.
	InsertIfAbsent(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, bool, error)
}

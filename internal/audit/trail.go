package audit

/*
Файл trail.go реализует аудит-трейл исполнений — асинхронный сборщик
событий с пакетной записью в хранилище.

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал отвязывает Hot Path шлюза
  от задержек записи в БД.
- Batching: накопление событий и пакетная вставка по таймеру или при
  достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитывает остатки и делает финальный flush — события не
  теряются при перезагрузке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Auditor interface {
	Log(event Event)
}

// BufferGauge отражает заполненность буфера наружу (prometheus.Gauge подходит)
type BufferGauge interface {
	Set(float64)
}

type Trail struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup
	gauge  BufferGauge // nil — без метрики

	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize int) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Trail{
		ch:     make(chan Event, bufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit-trail")),
	}
}

// SetFillGauge подключает метрику заполненности буфера. Вызывать до Start.
func (t *Trail) SetFillGauge(g BufferGauge) {
	t.gauge = g
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// Сначала ставим флаг, чтобы новые Log не писали в закрываемый канал
	atomic.StoreInt32(&t.isClosed, 1)

	// Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит в обычный лог,
	// а не блокирует исполнение
	select {
	case t.ch <- event:
		if t.gauge != nil {
			t.gauge.Set(float64(len(t.ch)))
		}
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("action", event.Action),
			zap.String("nonce", event.Nonce),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на shutdown уже может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный сброс и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if t.gauge != nil {
				t.gauge.Set(float64(len(t.ch)))
			}
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/openexec-gateway/internal/approval"
	"github.com/xela07ax/openexec-gateway/internal/audit"
	"github.com/xela07ax/openexec-gateway/internal/crypto"
	"github.com/xela07ax/openexec-gateway/internal/domain"
	"github.com/xela07ax/openexec-gateway/internal/ledger"
	"github.com/xela07ax/openexec-gateway/internal/receipt"
	"github.com/xela07ax/openexec-gateway/internal/registry"
)

// ActionGuard — необязательный рубеж оперативной блокировки действий
// (реализуется KillSwitchManager; nil отключает проверку)
type ActionGuard interface {
	IsDisabled(action string) bool
}

// Engine — оркестратор: проводит один запрос на исполнение через журнал,
// реестр, валидацию артефакта, хендлер и выпуск квитанции.
type Engine struct {
	mode      domain.Mode
	reg       *registry.Registry
	ledger    ledger.Ledger
	validator *approval.Validator
	guard     ActionGuard
	auditor   audit.Auditor
	metrics   *Metrics
	logger    *zap.Logger

	// allowed == nil — ограничения нет; пустая мапа запрещает всё
	allowed map[string]struct{}
}

type Options struct {
	Mode           domain.Mode
	Registry       *registry.Registry
	Ledger         ledger.Ledger
	Validator      *approval.Validator
	Guard          ActionGuard    // опционально
	Auditor        audit.Auditor  // опционально
	Metrics        *Metrics       // опционально
	Logger         *zap.Logger    // опционально
	AllowedActions []string       // пустой срез — ограничения нет
}

func New(opts Options) *Engine {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var allowed map[string]struct{}
	if len(opts.AllowedActions) > 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedActions))
		for _, name := range opts.AllowedActions {
			allowed[name] = struct{}{}
		}
	}

	return &Engine{
		mode:      opts.Mode,
		reg:       opts.Registry,
		ledger:    opts.Ledger,
		validator: opts.Validator,
		guard:     opts.Guard,
		auditor:   opts.Auditor,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("engine"),
		allowed:   allowed,
	}
}

// Mode отдает режим работы (для /health)
func (e *Engine) Mode() domain.Mode { return e.mode }

// Restricted сообщает, включен ли allow-list
func (e *Engine) Restricted() bool { return e.allowed != nil }

// Execute обрабатывает один запрос end-to-end.
//
// Повтор nonce закрывается записью из журнала до любой валидации:
// та же id, тот же результат, та же квитанция — без переисполнения.
// При конкурентной вставке проигравший отдает запись победителя.
func (e *Engine) Execute(ctx context.Context, req *domain.ActionRequest) (*domain.ExecutionRecord, error) {
	start := time.Now()
	status := "FAILED"
	e.metrics.TotalRequests.WithLabelValues(req.Action).Inc()
	defer func() {
		e.metrics.RequestDuration.WithLabelValues(req.Action, status).Observe(time.Since(start).Seconds())
	}()

	// 1. Replay: nonce уже исполнялся?
	existing, err := e.ledger.Lookup(ctx, req.Nonce)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("store_unavailable").Inc()
		return nil, err
	}
	if existing != nil {
		status = "REPLAY"
		e.metrics.ReplayTotal.WithLabelValues(req.Action).Inc()
		e.audit(req, existing.ID, "REPLAY", "", start)
		return e.withReceipt(existing)
	}

	// 2. Реестр и ограничения
	if e.allowed != nil {
		if _, ok := e.allowed[req.Action]; !ok {
			status = "UNKNOWN_ACTION"
			e.metrics.ErrorTotal.WithLabelValues("unknown_action").Inc()
			e.audit(req, "", "DENIED", "action not in allow-list", start)
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, req.Action)
		}
	}

	handler, ok := e.reg.Get(req.Action)
	if !ok {
		status = "UNKNOWN_ACTION"
		e.metrics.ErrorTotal.WithLabelValues("unknown_action").Inc()
		e.audit(req, "", "DENIED", "action is not registered", start)
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, req.Action)
	}

	if e.guard != nil && e.guard.IsDisabled(req.Action) {
		status = "DENIED"
		e.metrics.ErrorTotal.WithLabelValues("unauthorized").Inc()
		e.audit(req, "", "DENIED", "action disabled by kill-switch", start)
		return nil, &domain.UnauthorizedError{Reason: fmt.Sprintf("action %s is temporarily disabled", req.Action)}
	}

	// 3. Авторизация
	approved, authErr := e.authorize(req)
	if authErr != nil {
		status = "DENIED"
		e.metrics.ErrorTotal.WithLabelValues("unauthorized").Inc()
		e.audit(req, "", "DENIED", authErr.Error(), start)
		return nil, authErr
	}

	// 4. Исполнение хендлера
	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	result, err := handler(payload)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("handler_failed").Inc()
		e.audit(req, "", "FAILED", err.Error(), start)
		return nil, fmt.Errorf("handler %s failed: %w", req.Action, err)
	}

	// 5. Канонические формы для журнала и квитанции
	payloadText, err := crypto.Canonicalize(payload)
	if err != nil {
		return nil, err
	}
	resultText, err := crypto.Canonicalize(result)
	if err != nil {
		return nil, err
	}

	// 6. Атомарная фиксация в журнале
	record := &domain.ExecutionRecord{
		ID:        uuid.New().String(),
		Action:    req.Action,
		Payload:   string(payloadText),
		Result:    result,
		Approved:  approved,
		Nonce:     req.Nonce,
		CreatedAt: time.Now().UTC(),
	}

	winner, inserted, err := e.ledger.InsertIfAbsent(ctx, record)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("store_unavailable").Inc()
		return nil, err
	}
	if !inserted {
		// Конкурент с тем же nonce успел первым: наш результат выбрасываем,
		// side-эффекты хендлера ядро не компенсирует
		status = "REPLAY"
		e.metrics.ReplayTotal.WithLabelValues(req.Action).Inc()
		e.audit(req, winner.ID, "REPLAY", "", start)
		return e.withReceipt(winner)
	}

	// 7. Квитанция
	record.Receipt = receipt.Issue(record.ID, string(resultText))

	status = "SUCCESS"
	e.audit(req, record.ID, "SUCCESS", "", start)
	e.logger.Info("action executed",
		zap.String("action", req.Action),
		zap.String("execution_id", record.ID),
		zap.Bool("approved", approved),
	)
	return record, nil
}

// authorize решает судьбу запроса по режиму деплоя
func (e *Engine) authorize(req *domain.ActionRequest) (bool, error) {
	switch e.mode {
	case domain.ModeOpen:
		return true, nil
	case domain.ModeGoverned:
		if req.ApprovalArtifact == nil {
			return false, &domain.UnauthorizedError{
				Reason: "governed mode requires an approval artifact",
				Approval: &domain.ApprovalError{
					Kind:    domain.KindArtifactRequired,
					Message: "governed mode requires an approval artifact",
				},
			}
		}
		if appErr := e.validator.Validate(req.Action, req.Payload, req.ApprovalArtifact); appErr != nil {
			return false, domain.NewUnauthorized(appErr)
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown mode: %s", e.mode)
	}
}

// withReceipt пересчитывает квитанцию для записи из журнала —
// отдельно она не хранится
func (e *Engine) withReceipt(rec *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	resultText, err := crypto.Canonicalize(rec.Result)
	if err != nil {
		return nil, err
	}
	rec.Receipt = receipt.Issue(rec.ID, string(resultText))
	return rec, nil
}

func (e *Engine) audit(req *domain.ActionRequest, execID, status, reason string, start time.Time) {
	if e.auditor == nil {
		return
	}
	e.auditor.Log(audit.Event{
		ID:          uuid.New().String(),
		ExecutionID: execID,
		Action:      req.Action,
		Nonce:       req.Nonce,
		Payload:     req.Payload,
		Status:      status,
		Reason:      reason,
		Timestamp:   start,
		DurationMs:  time.Since(start).Milliseconds(),
	})
}

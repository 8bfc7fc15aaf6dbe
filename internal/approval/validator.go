package approval

import (
	"fmt"
	"time"

	"github.com/xela07ax/openexec-gateway/internal/crypto"
	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// Scheme — поколение подписи артефакта. Деплой выбирает ровно одну схему
// и связанную с ней политику свежести на этапе конфигурации.
type Scheme string

const (
	// SchemeEd25519 — асимметричная подпись с явным expires_at
	SchemeEd25519 Scheme = "ed25519"
	// SchemeHMAC — симметричная подпись с ограничением возраста по issued_at
	SchemeHMAC Scheme = "hmac"
)

// DefaultMaxArtifactAge — окно свежести для схемы HMAC, если не задано в конфиге
const DefaultMaxArtifactAge = 300 * time.Second

// Config — явный объект конфигурации валидатора (вместо чтения ENV по месту)
type Config struct {
	Scheme Scheme

	// Verifier == nil означает, что trust material не сконфигурирован:
	// это отказ в авторизации, а не сбой сервиса
	Verifier crypto.Verifier

	// ExpectedTenant == "" отключает проверку тенанта
	ExpectedTenant string
	// RequiredIssuer == "" отключает проверку издателя
	RequiredIssuer string

	MaxArtifactAge time.Duration
}

// Validator проверяет артефакт одобрения против текущего запроса.
// Проверки выполняются в фиксированном порядке с остановкой на первой
// неудаче — порядок определяет, какую ошибку увидит вызывающий.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	if cfg.MaxArtifactAge <= 0 {
		cfg.MaxArtifactAge = DefaultMaxArtifactAge
	}
	return &Validator{cfg: cfg}
}

// Validate связывает артефакт с парой action+payload текущего запроса.
// Хеш пересчитывается из самого запроса — значение из артефакта никогда
// не принимается на веру.
func (v *Validator) Validate(action string, payload map[string]interface{}, artifact *domain.ApprovalArtifact) *domain.ApprovalError {
	// 1. Привязка к запросу. Невозможность посчитать хеш — это не расхождение
	// хешей, а несериализуемый payload: отдельный Kind для вызывающего кода.
	expectedHash, err := crypto.HashActionRequest(action, payload)
	if err != nil {
		return &domain.ApprovalError{
			Kind:    domain.KindHashingFailure,
			Message: fmt.Sprintf("Unable to compute action hash: %v", err),
		}
	}
	if artifact.ActionHash != expectedHash {
		return &domain.ApprovalError{
			Kind:    domain.KindActionHashMismatch,
			Message: "Action hash mismatch: approval does not match this request",
		}
	}

	// 2. Свежесть (политика привязана к схеме)
	if appErr := v.checkFreshness(artifact); appErr != nil {
		return appErr
	}

	// 3. Trust material из конфигурации процесса
	if v.cfg.Verifier == nil {
		return &domain.ApprovalError{
			Kind:    domain.KindConfigurationMissing,
			Message: "Approval trust material not configured",
		}
	}

	// 4. Подпись над реконструированным сообщением
	var message []byte
	switch v.cfg.Scheme {
	case SchemeHMAC:
		message = HMACMessage(artifact)
	default:
		message = Ed25519Message(artifact)
	}
	if !v.cfg.Verifier.Verify(message, artifact.Signature) {
		return &domain.ApprovalError{
			Kind:    domain.KindInvalidSignature,
			Message: "Invalid signature: approval artifact is not authentic",
		}
	}

	// 5. Тенант
	if v.cfg.ExpectedTenant != "" && artifact.TenantID != v.cfg.ExpectedTenant {
		return &domain.ApprovalError{
			Kind:    domain.KindTenantMismatch,
			Message: fmt.Sprintf("Tenant mismatch: expected %s, got %s", v.cfg.ExpectedTenant, artifact.TenantID),
		}
	}

	// 6. Издатель
	if v.cfg.RequiredIssuer != "" && artifact.IssuedBy != v.cfg.RequiredIssuer {
		return &domain.ApprovalError{
			Kind:    domain.KindUnknownIssuer,
			Message: fmt.Sprintf("Unknown issuer: expected %s, got %s", v.cfg.RequiredIssuer, artifact.IssuedBy),
		}
	}

	return nil
}

func (v *Validator) checkFreshness(artifact *domain.ApprovalArtifact) *domain.ApprovalError {
	switch v.cfg.Scheme {
	case SchemeHMAC:
		// v2: возраст артефакта ограничен окном от issued_at
		if artifact.IssuedAt == "" {
			return &domain.ApprovalError{
				Kind:    domain.KindInvalidTimestamp,
				Message: "Missing issued_at in approval artifact",
			}
		}
		issuedAt, err := parseTimestamp(artifact.IssuedAt)
		if err != nil {
			return &domain.ApprovalError{
				Kind:    domain.KindInvalidTimestamp,
				Message: "Invalid issued_at timestamp",
			}
		}
		if time.Since(issuedAt) > v.cfg.MaxArtifactAge {
			return &domain.ApprovalError{
				Kind:    domain.KindExpired,
				Message: "Approval artifact expired",
			}
		}
	default:
		// v1: явный срок годности обязателен
		if artifact.ExpiresAt == "" {
			return &domain.ApprovalError{
				Kind:    domain.KindInvalidTimestamp,
				Message: "Missing expires_at in approval artifact",
			}
		}
		expiresAt, err := parseTimestamp(artifact.ExpiresAt)
		if err != nil {
			return &domain.ApprovalError{
				Kind:    domain.KindInvalidTimestamp,
				Message: "Invalid expires_at timestamp",
			}
		}
		if expiresAt.Before(time.Now()) {
			return &domain.ApprovalError{
				Kind:    domain.KindExpired,
				Message: "Approval artifact expired",
			}
		}
	}
	return nil
}

// parseTimestamp принимает RFC3339 и "голый" ISO без зоны (трактуется как UTC) —
// authority исторически выпускали артефакты в обоих форматах
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

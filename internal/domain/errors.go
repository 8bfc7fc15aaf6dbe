package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок ядра. Unauthorized и UnknownAction — ожидаемые исходы,
// которые транспорт мапит в отказ клиенту. StoreUnavailable — единственный
// класс, трактуемый как сбой сервиса.
var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ApprovalKind — дискриминант причины отказа валидации артефакта.
// Каллеры матчатся по Kind, не по тексту сообщения.
type ApprovalKind string

const (
	KindActionHashMismatch   ApprovalKind = "action_hash_mismatch"
	KindHashingFailure       ApprovalKind = "hashing_failure"
	KindExpired              ApprovalKind = "expired"
	KindInvalidTimestamp     ApprovalKind = "invalid_timestamp"
	KindConfigurationMissing ApprovalKind = "configuration_missing"
	KindInvalidSignature     ApprovalKind = "invalid_signature"
	KindTenantMismatch       ApprovalKind = "tenant_mismatch"
	KindUnknownIssuer        ApprovalKind = "unknown_issuer"
	KindArtifactRequired     ApprovalKind = "artifact_required"
)

// ApprovalError — типизированный результат проверки артефакта вместо
// исключений: вызывающий код разбирает Kind без сравнения типов паники.
type ApprovalError struct {
	Kind    ApprovalKind
	Message string
}

func (e *ApprovalError) Error() string {
	return e.Message
}

// UnauthorizedError оборачивает любую причину отказа в авторизации
// для транспортного слоя (403).
type UnauthorizedError struct {
	Reason   string
	Approval *ApprovalError // nil, если отказ не связан с артефактом
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

func (e *UnauthorizedError) Unwrap() error {
	if e.Approval != nil {
		return e.Approval
	}
	return nil
}

// NewUnauthorized строит отказ из ошибки валидации артефакта
func NewUnauthorized(err *ApprovalError) *UnauthorizedError {
	return &UnauthorizedError{Reason: err.Message, Approval: err}
}

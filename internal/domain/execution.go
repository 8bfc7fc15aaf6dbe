package domain

import "time"

// Режимы работы шлюза
type Mode string

const (
	// ModeOpen — демо-режим: любой запрос исполняется без артефакта одобрения
	ModeOpen Mode = "open"
	// ModeGoverned — боевой режим: каждый запрос обязан предъявить подписанный артефакт
	ModeGoverned Mode = "governed"
)

// ActionRequest — входящий запрос на исполнение действия.
// Nonce — клиентский ключ идемпотентности; его уникальность
// гарантирует Ledger, а не сама структура.
type ActionRequest struct {
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
	Nonce   string                 `json:"nonce"`

	// Артефакт обязателен только в ModeGoverned
	ApprovalArtifact *ApprovalArtifact `json:"approval_artifact,omitempty"`
}

// ApprovalArtifact — подписанное внешним центром (authority) свидетельство того,
// что конкретная пара action+payload была санкционирована.
// Иммутабелен после выпуска, потребляется один раз.
type ApprovalArtifact struct {
	ApprovalID string `json:"approval_id"`
	TenantID   string `json:"tenant_id"`
	ActionHash string `json:"action_hash"` // hex-дайджест канонической формы {action, payload}
	IssuedAt   string `json:"issued_at"`   // RFC3339
	ExpiresAt  string `json:"expires_at,omitempty"`
	Signature  string `json:"signature"`
	IssuedBy   string `json:"issued_by,omitempty"`
}

// ExecutionRecord — запись в журнале исполнений. Создается ровно один раз
// на каждый уникальный nonce и после этого никогда не мутируется.
type ExecutionRecord struct {
	ID        string                 `json:"id"`
	Action    string                 `json:"action"`
	Payload   string                 `json:"-"` // канонический JSON payload, хранится для аудита
	Result    map[string]interface{} `json:"result"`
	Approved  bool                   `json:"approved"`
	Nonce     string                 `json:"nonce"`
	CreatedAt time.Time              `json:"created_at"`

	// Receipt не хранится в БД — пересчитывается из id и канонического результата
	Receipt string `json:"receipt,omitempty"`
}

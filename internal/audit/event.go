package audit

import "time"

type Event struct {
	ID          string                 `json:"id"`           // UUID события
	ExecutionID string                 `json:"execution_id"` // ID записи в журнале (пусто при отказе)
	Action      string                 `json:"action"`       // Что исполняли
	Nonce       string                 `json:"nonce"`        // Клиентский ключ идемпотентности
	Payload     map[string]interface{} `json:"payload"`      // С какими данными

	// Результат
	Status     string    `json:"status"` // "SUCCESS", "REPLAY", "DENIED", "FAILED"
	Reason     string    `json:"reason"` // Причина отказа (пусто при успехе)
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время обработки
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

const schemaAudit = `
CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	execution_id TEXT,
	action       TEXT NOT NULL,
	nonce        TEXT NOT NULL,
	payload      JSONB,
	status       TEXT NOT NULL,
	reason       TEXT,
	duration_ms  BIGINT,
	timestamp    TIMESTAMPTZ NOT NULL
)`

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(ctx context.Context, connString string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schemaAudit); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

func (r *PostgresStorage) Close() error {
	return r.db.Close()
}

func (r *PostgresStorage) WriteBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		payload, _ := json.Marshal(e.Payload)

		vals = append(vals,
			e.ID, e.ExecutionID, e.Action, e.Nonce,
			payload, e.Status, e.Reason, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_events (id, execution_id, action, nonce, payload, status, reason, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

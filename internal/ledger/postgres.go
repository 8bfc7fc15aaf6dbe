package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

/*
Файл postgres.go реализует журнал исполнений поверх PostgreSQL.

Уникальность nonce обеспечивает constraint таблицы, а не приложение:
INSERT ... ON CONFLICT (nonce) DO NOTHING атомарен между любым числом
конкурентных воркеров и инстансов шлюза, разделяющих одну базу.
Проигравший вставку читает запись победителя повторным SELECT.
*/

const schemaExecutions = `
CREATE TABLE IF NOT EXISTS executions (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	payload    TEXT,
	result     TEXT,
	nonce      TEXT NOT NULL UNIQUE,
	approved   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger подключает пул и создает таблицу, если ее еще нет
func NewPostgresLedger(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaExecutions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}

	return &PostgresLedger{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (l *PostgresLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *PostgresLedger) Close() {
	l.pool.Close()
}

func (l *PostgresLedger) Lookup(ctx context.Context, nonce string) (*domain.ExecutionRecord, error) {
	query := `SELECT id, action, payload, result, nonce, approved, created_at
	          FROM executions WHERE nonce = $1`

	rec, err := scanRecord(l.pool.QueryRow(ctx, query, nonce))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to look up nonce: %v", domain.ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (l *PostgresLedger) InsertIfAbsent(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, bool, error) {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: encode result: %w", err)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO executions (id, action, payload, result, nonce, approved, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (nonce) DO NOTHING`

	tag, err := l.pool.Exec(ctx, query,
		record.ID, record.Action, record.Payload, string(resultJSON),
		record.Nonce, record.Approved, record.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to insert execution: %v", domain.ErrStoreUnavailable, err)
	}

	if tag.RowsAffected() == 1 {
		return record, true, nil
	}

	// Конкурент успел раньше — отдаем его запись
	existing, err := l.Lookup(ctx, record.Nonce)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Между INSERT и SELECT запись не могла исчезнуть: ядро ничего не удаляет
		return nil, false, fmt.Errorf("%w: conflicting record vanished for nonce %s", domain.ErrStoreUnavailable, record.Nonce)
	}
	return existing, false, nil
}

func scanRecord(row pgx.Row) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var resultJSON string

	err := row.Scan(
		&rec.ID,
		&rec.Action,
		&rec.Payload,
		&resultJSON,
		&rec.Nonce,
		&rec.Approved,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resultJSON != "" {
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, fmt.Errorf("postgres: decode result: %w", err)
		}
	}
	return &rec, nil
}

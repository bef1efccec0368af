package db

import (
	"context"
	"fmt"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const serviceLogTable = "service_logs"

const createServiceLogs = `CREATE TABLE IF NOT EXISTS service_logs (
	id         TEXT PRIMARY KEY,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	request_id TEXT,
	details    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
)`

const insertServiceLog = `INSERT INTO service_logs (id, level, message, request_id, details, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

const listServiceLogs = `SELECT id, level, message, COALESCE(request_id, ''), details, created_at
FROM service_logs ORDER BY created_at DESC LIMIT $1`

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LogRepository persists service logs.
type LogRepository struct {
	db Querier
}

func NewLogRepository(db Querier) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, createServiceLogs)
	return err
}

func (r *LogRepository) Insert(ctx context.Context, entry models.ServiceLog) error {
	details := entry.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	if _, err := r.db.Exec(ctx, insertServiceLog,
		entry.ID,
		entry.Level,
		entry.Message,
		entry.RequestID,
		[]byte(details),
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert service log: %w", err)
	}
	return nil
}

// Recent returns the newest limit entries, newest first.
func (r *LogRepository) Recent(ctx context.Context, limit int) ([]models.ServiceLog, error) {
	rows, err := r.db.Query(ctx, listServiceLogs, limit)
	if err != nil {
		return nil, fmt.Errorf("list service logs: %w", err)
	}
	defer rows.Close()

	var entries []models.ServiceLog
	for rows.Next() {
		var e models.ServiceLog
		var details []byte
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.RequestID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service log: %w", err)
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fritzwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/fritzwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id BIGSERIAL PRIMARY KEY,
			datetime BIGINT NOT NULL,
			message TEXT NOT NULL,
			message_id BIGINT NOT NULL,
			category_id BIGINT NOT NULL,
			repetition_datetime BIGINT,
			repetition_count BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_datetime ON logs(datetime)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id BIGSERIAL PRIMARY KEY,
			datetime BIGINT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			method TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			response_code BIGINT,
			session_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS updates (
			id BIGSERIAL PRIMARY KEY,
			datetime BIGINT NOT NULL,
			upserted_rows BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pings (
			id BIGSERIAL PRIMARY KEY,
			datetime BIGINT NOT NULL,
			target TEXT NOT NULL,
			duration_ms BIGINT,
			ttl BIGINT,
			bytes BIGINT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SelectLatest(ctx context.Context) (*model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT datetime, message, message_id, category_id, repetition_datetime, repetition_count
		FROM logs ORDER BY datetime DESC, id DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *postgresStore) SelectLogs(ctx context.Context, offset, limit int) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT datetime, message, message_id, category_id, repetition_datetime, repetition_count
		FROM logs ORDER BY datetime DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *postgresStore) Append(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO logs (datetime, message, message_id, category_id, repetition_datetime, repetition_count)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, record := range records {
		row := rowFromRecord(record)
		if _, err := stmt.ExecContext(ctx,
			row.datetime,
			row.message,
			row.messageID,
			row.categoryID,
			row.repetitionDatetime,
			row.repetitionCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) Replace(ctx context.Context, old, new model.Record) error {
	row := rowFromRecord(new)
	key := old.Key()
	res, err := s.db.ExecContext(ctx,
		`UPDATE logs
		SET datetime = $1, message = $2, repetition_datetime = $3, repetition_count = $4
		WHERE COALESCE(repetition_datetime, datetime) = $5 AND message_id = $6 AND category_id = $7`,
		row.datetime,
		row.message,
		row.repetitionDatetime,
		row.repetitionCount,
		key.EarliestMilli,
		key.MessageID,
		key.CategoryID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("replace affected %d rows, want exactly 1", affected)
	}
	return nil
}

func (s *postgresStore) SaveRequest(ctx context.Context, req model.RequestInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (datetime, name, url, method, duration_ms, response_code, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.Timestamp.UnixMilli(),
		req.Name,
		req.URL,
		req.Method,
		req.DurationMS,
		req.ResponseCode,
		req.SessionID,
	)
	return err
}

func (s *postgresStore) SaveUpdate(ctx context.Context, update model.UpdateInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (datetime, upserted_rows) VALUES ($1, $2)`,
		update.Timestamp.UnixMilli(),
		update.UpsertedRows,
	)
	return err
}

func (s *postgresStore) SavePing(ctx context.Context, ping model.PingInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pings (datetime, target, duration_ms, ttl, bytes)
		VALUES ($1, $2, $3, $4, $5)`,
		ping.Timestamp.UnixMilli(),
		ping.Target,
		nullableInt(ping.DurationMS),
		nullableInt(ping.TTL),
		nullableInt(ping.Bytes),
	)
	return err
}

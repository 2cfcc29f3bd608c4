package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"fritzwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:fritzwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Merges are single-writer; a second connection would only trip
	// over sqlite's locking.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime INTEGER NOT NULL,
			message TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			repetition_datetime INTEGER,
			repetition_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_datetime ON logs(datetime)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime INTEGER NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			method TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			response_code INTEGER,
			session_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime INTEGER NOT NULL,
			upserted_rows INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			datetime INTEGER NOT NULL,
			target TEXT NOT NULL,
			duration_ms INTEGER,
			ttl INTEGER,
			bytes INTEGER
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SelectLatest(ctx context.Context) (*model.Record, error) {
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

func (s *sqliteStore) SelectLogs(ctx context.Context, offset, limit int) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT datetime, message, message_id, category_id, repetition_datetime, repetition_count
		FROM logs ORDER BY datetime DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *sqliteStore) Append(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO logs (datetime, message, message_id, category_id, repetition_datetime, repetition_count)
		VALUES (?, ?, ?, ?, ?, ?)`)
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

func (s *sqliteStore) Replace(ctx context.Context, old, new model.Record) error {
	row := rowFromRecord(new)
	key := old.Key()
	res, err := s.db.ExecContext(ctx,
		`UPDATE logs
		SET datetime = ?, message = ?, repetition_datetime = ?, repetition_count = ?
		WHERE COALESCE(repetition_datetime, datetime) = ? AND message_id = ? AND category_id = ?`,
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

func (s *sqliteStore) SaveRequest(ctx context.Context, req model.RequestInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (datetime, name, url, method, duration_ms, response_code, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveUpdate(ctx context.Context, update model.UpdateInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (datetime, upserted_rows) VALUES (?, ?)`,
		update.Timestamp.UnixMilli(),
		update.UpsertedRows,
	)
	return err
}

func (s *sqliteStore) SavePing(ctx context.Context, ping model.PingInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pings (datetime, target, duration_ms, ttl, bytes)
		VALUES (?, ?, ?, ?, ?)`,
		ping.Timestamp.UnixMilli(),
		ping.Target,
		nullableInt(ping.DurationMS),
		nullableInt(ping.TTL),
		nullableInt(ping.Bytes),
	)
	return err
}

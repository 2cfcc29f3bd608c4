package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fritzwatch/internal/config"
	"fritzwatch/internal/model"
)

// Store is the persisted, time-ordered log history plus the metadata
// tables kept alongside it. Rows are written exactly as given; deciding
// what is new is the merge engine's job, not the store's.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	SelectLatest(ctx context.Context) (*model.Record, error)
	SelectLogs(ctx context.Context, offset, limit int) ([]model.Record, error)
	Append(ctx context.Context, records []model.Record) error
	Replace(ctx context.Context, old, new model.Record) error

	SaveRequest(ctx context.Context, req model.RequestInfo) error
	SaveUpdate(ctx context.Context, update model.UpdateInfo) error
	SavePing(ctx context.Context, ping model.PingInfo) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// logRow is the wire shape of one logs table row. Timestamps are stored
// as UTC unixtime with millisecond precision.
type logRow struct {
	datetime           int64
	message            string
	messageID          int64
	categoryID         int64
	repetitionDatetime sql.NullInt64
	repetitionCount    sql.NullInt64
}

func rowFromRecord(r model.Record) logRow {
	row := logRow{
		datetime:   r.Timestamp.UnixMilli(),
		message:    r.Message,
		messageID:  r.MessageID,
		categoryID: r.CategoryID,
	}
	if r.Repetition != nil {
		row.repetitionDatetime = sql.NullInt64{Int64: r.Repetition.FirstSeen.UnixMilli(), Valid: true}
		row.repetitionCount = sql.NullInt64{Int64: r.Repetition.Count, Valid: true}
	}
	return row
}

func (row logRow) record() (model.Record, error) {
	r := model.Record{
		Timestamp:  time.UnixMilli(row.datetime),
		Message:    row.message,
		MessageID:  row.messageID,
		CategoryID: row.categoryID,
	}
	switch {
	case row.repetitionDatetime.Valid && row.repetitionCount.Valid:
		r.Repetition = &model.Repetition{
			FirstSeen: time.UnixMilli(row.repetitionDatetime.Int64),
			Count:     row.repetitionCount.Int64,
		}
	case row.repetitionDatetime.Valid != row.repetitionCount.Valid:
		return model.Record{}, fmt.Errorf("row with half a repetition (datetime %v, count %v)",
			row.repetitionDatetime, row.repetitionCount)
	}
	return r, nil
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		var row logRow
		if err := rows.Scan(&row.datetime, &row.message, &row.messageID,
			&row.categoryID, &row.repetitionDatetime, &row.repetitionCount); err != nil {
			return nil, err
		}
		record, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

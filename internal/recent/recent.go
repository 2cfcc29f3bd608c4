package recent

import (
	"sync"
	"time"

	"fritzwatch/internal/model"
)

// Buffer keeps the most recently incorporated records in memory so the
// API can serve them without a store round trip.
type Buffer struct {
	mu    sync.RWMutex
	buf   []model.Record
	limit int
}

func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 1000
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Add(records ...model.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, record := range records {
		if len(b.buf) < b.limit {
			b.buf = append(b.buf, record)
			continue
		}
		copy(b.buf, b.buf[1:])
		b.buf[len(b.buf)-1] = record
	}
}

func (b *Buffer) List(limit int) []model.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.buf) {
		limit = len(b.buf)
	}
	out := make([]model.Record, 0, limit)
	for i := len(b.buf) - limit; i < len(b.buf); i++ {
		out = append(out, b.buf[i])
	}
	return out
}

func (b *Buffer) Since(ts time.Time) []model.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Record, 0)
	for _, record := range b.buf {
		if !record.Timestamp.Before(ts) {
			out = append(out, record)
		}
	}
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = nil
}

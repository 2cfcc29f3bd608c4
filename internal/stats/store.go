package stats

import (
	"sync"
	"time"
)

// PollStats is a snapshot of what the poll loop has done so far.
type PollStats struct {
	Polls             int64     `json:"polls"`
	LastPoll          time.Time `json:"last_poll"`
	LastFetched       int       `json:"last_fetched"`
	LastIncorporated  int       `json:"last_incorporated"`
	TotalIncorporated int64     `json:"total_incorporated"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorAt       time.Time `json:"last_error_at,omitzero"`
}

type Store struct {
	mu    sync.RWMutex
	stats PollStats
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) RecordPoll(fetched, incorporated int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Polls++
	s.stats.LastPoll = time.Now().UTC()
	s.stats.LastFetched = fetched
	s.stats.LastIncorporated = incorporated
	s.stats.TotalIncorporated += int64(incorporated)
}

func (s *Store) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastError = err.Error()
	s.stats.LastErrorAt = time.Now().UTC()
}

func (s *Store) Snapshot() PollStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = PollStats{}
}

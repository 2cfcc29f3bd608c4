package stats

import (
	"errors"
	"testing"
)

func TestRecordPollAccumulates(t *testing.T) {
	s := NewStore()
	s.RecordPoll(10, 3)
	s.RecordPoll(5, 2)

	snap := s.Snapshot()
	if snap.Polls != 2 {
		t.Fatalf("polls = %d, want 2", snap.Polls)
	}
	if snap.LastFetched != 5 || snap.LastIncorporated != 2 {
		t.Fatalf("last = %d/%d, want 5/2", snap.LastFetched, snap.LastIncorporated)
	}
	if snap.TotalIncorporated != 5 {
		t.Fatalf("total = %d, want 5", snap.TotalIncorporated)
	}
	if snap.LastPoll.IsZero() {
		t.Fatalf("last poll time not set")
	}
}

func TestRecordError(t *testing.T) {
	s := NewStore()
	s.RecordError(nil)
	if snap := s.Snapshot(); snap.LastError != "" || !snap.LastErrorAt.IsZero() {
		t.Fatalf("nil error recorded: %+v", snap)
	}

	s.RecordError(errors.New("boom"))
	snap := s.Snapshot()
	if snap.LastError != "boom" || snap.LastErrorAt.IsZero() {
		t.Fatalf("error not recorded: %+v", snap)
	}

	s.Clear()
	if snap := s.Snapshot(); snap.LastError != "" || snap.Polls != 0 {
		t.Fatalf("clear left state behind: %+v", snap)
	}
}

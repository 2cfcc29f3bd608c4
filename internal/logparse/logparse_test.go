package logparse

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func entry(date, clock, message string) RawEntry {
	return RawEntry{
		Date:       date,
		Time:       clock,
		Message:    message,
		MessageID:  "714",
		CategoryID: "2",
	}
}

func TestParsePlainEntry(t *testing.T) {
	loc := berlin(t)
	p := NewParser(loc)

	record, err := p.Parse(entry("01.01.23", "13:37:00", "Internetverbindung wurde getrennt."))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2023, 1, 1, 13, 37, 0, 0, loc)
	if !record.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", record.Timestamp, want)
	}
	if record.Message != "Internetverbindung wurde getrennt." {
		t.Fatalf("message = %q", record.Message)
	}
	if record.MessageID != 714 || record.CategoryID != 2 {
		t.Fatalf("ids = %d/%d, want 714/2", record.MessageID, record.CategoryID)
	}
	if record.Repetition != nil {
		t.Fatalf("unexpected repetition %+v", record.Repetition)
	}
}

func TestParseStripsRepetitionSuffix(t *testing.T) {
	loc := berlin(t)
	p := NewParser(loc)

	record, err := p.Parse(entry("01.01.23", "02:02:02",
		"Anmeldung an der FRITZ!Box-Benutzeroberfläche gescheitert. [3 Meldungen seit 01.01.23 01:01:01]"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if record.Message != "Anmeldung an der FRITZ!Box-Benutzeroberfläche gescheitert." {
		t.Fatalf("suffix not stripped: %q", record.Message)
	}
	if record.Repetition == nil {
		t.Fatalf("repetition missing")
	}
	if record.Repetition.Count != 3 {
		t.Fatalf("count = %d, want 3", record.Repetition.Count)
	}
	wantFirst := time.Date(2023, 1, 1, 1, 1, 1, 0, loc)
	if !record.Repetition.FirstSeen.Equal(wantFirst) {
		t.Fatalf("first seen = %v, want %v", record.Repetition.FirstSeen, wantFirst)
	}
	if record.EarliestUnixMilli() != wantFirst.UnixMilli() {
		t.Fatalf("earliest should follow first seen")
	}
}

func TestParseBracketsWithoutSuffixShapeAreKept(t *testing.T) {
	p := NewParser(time.UTC)
	record, err := p.Parse(entry("01.01.23", "13:37:00", "Update [manuell] angestoßen"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if record.Message != "Update [manuell] angestoßen" {
		t.Fatalf("message mangled: %q", record.Message)
	}
	if record.Repetition != nil {
		t.Fatalf("unexpected repetition")
	}
}

func TestParseRejectsMalformedDate(t *testing.T) {
	p := NewParser(time.UTC)
	_, err := p.Parse(entry("31.13.23", "13:37:00", "x"))
	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("got %v, want TimestampError", err)
	}
	if tsErr.Date != "31.13.23" {
		t.Fatalf("error carries date %q", tsErr.Date)
	}
}

func TestParseRejectsMalformedTime(t *testing.T) {
	p := NewParser(time.UTC)
	_, err := p.Parse(entry("01.01.23", "25:00:00", "x"))
	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("got %v, want TimestampError", err)
	}
}

func TestParseRejectsDSTGap(t *testing.T) {
	p := NewParser(berlin(t))
	// 2023-03-26 02:30 does not exist in Europe/Berlin; clocks jump
	// from 02:00 to 03:00.
	_, err := p.Parse(entry("26.03.23", "02:30:00", "x"))
	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("got %v, want TimestampError", err)
	}

	// The same wall clock is perfectly valid in a zone without the gap.
	if _, err := NewParser(time.UTC).Parse(entry("26.03.23", "02:30:00", "x")); err != nil {
		t.Fatalf("utc parse: %v", err)
	}
}

func TestParseRejectsAmbiguousTime(t *testing.T) {
	p := NewParser(berlin(t))
	// 2023-10-29 02:30 happens twice in Europe/Berlin; clocks roll back
	// from 03:00 CEST to 02:00 CET. Neither instant can be preferred.
	_, err := p.Parse(entry("29.10.23", "02:30:00", "x"))
	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("got %v, want TimestampError", err)
	}

	// Either side of the repeated hour is unambiguous and parses.
	record, err := p.Parse(entry("29.10.23", "01:30:00", "x"))
	if err != nil {
		t.Fatalf("parse before rollback: %v", err)
	}
	if record.Timestamp.Hour() != 1 {
		t.Fatalf("timestamp = %v", record.Timestamp)
	}
	if _, err := p.Parse(entry("29.10.23", "03:30:00", "x")); err != nil {
		t.Fatalf("parse after rollback: %v", err)
	}

	// And the wall clock itself is fine where no rollback happens.
	if _, err := NewParser(time.UTC).Parse(entry("29.10.23", "02:30:00", "x")); err != nil {
		t.Fatalf("utc parse: %v", err)
	}
}

func TestParseRejectsAmbiguousRepetitionFirstSeen(t *testing.T) {
	p := NewParser(berlin(t))
	_, err := p.Parse(entry("29.10.23", "14:00:00", "x [2 Meldungen seit 29.10.23 02:30:00]"))
	var repErr *RepetitionError
	if !errors.As(err, &repErr) {
		t.Fatalf("got %v, want RepetitionError", err)
	}
}

func TestParseRejectsNonNumericIDs(t *testing.T) {
	p := NewParser(time.UTC)

	raw := entry("01.01.23", "13:37:00", "x")
	raw.MessageID = "abc"
	_, err := p.Parse(raw)
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("got %v, want FieldError", err)
	}
	if fieldErr.Field != "message id" {
		t.Fatalf("field = %q", fieldErr.Field)
	}

	raw = entry("01.01.23", "13:37:00", "x")
	raw.CategoryID = ""
	_, err = p.Parse(raw)
	if !errors.As(err, &fieldErr) {
		t.Fatalf("got %v, want FieldError", err)
	}
	if fieldErr.Field != "category id" {
		t.Fatalf("field = %q", fieldErr.Field)
	}
}

func TestParseRejectsMalformedRepetitionTimestamp(t *testing.T) {
	p := NewParser(time.UTC)
	_, err := p.Parse(entry("01.01.23", "13:37:00", "x [3 Meldungen seit 99.99.99 01:01:01]"))
	var repErr *RepetitionError
	if !errors.As(err, &repErr) {
		t.Fatalf("got %v, want RepetitionError", err)
	}
	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("repetition error should wrap the timestamp error, got %v", err)
	}
}

func TestParseAllPreservesOrderAndIndexesErrors(t *testing.T) {
	p := NewParser(time.UTC)

	records, err := p.ParseAll([]RawEntry{
		entry("01.01.23", "01:00:00", "first"),
		entry("01.01.23", "02:00:00", "second"),
	})
	if err != nil {
		t.Fatalf("parse all: %v", err)
	}
	if len(records) != 2 || records[0].Message != "first" || records[1].Message != "second" {
		t.Fatalf("order not preserved: %+v", records)
	}

	_, err = p.ParseAll([]RawEntry{
		entry("01.01.23", "01:00:00", "good"),
		entry("bad", "01:00:00", "broken"),
	})
	if err == nil || !strings.Contains(err.Error(), "entry 1") {
		t.Fatalf("error should name the failing index, got %v", err)
	}
}

package logparse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"fritzwatch/internal/model"
)

// RawEntry is one device-native log line: six opaque text fields in the
// order the web interface returns them.
type RawEntry struct {
	Date       string
	Time       string
	Message    string
	MessageID  string
	CategoryID string
	Help       string
}

const (
	dateLayout = "02.01.06"
	timeLayout = "15:04:05"
)

// Repetition suffix the device appends when it collapses repeated
// messages, e.g. " [4 Meldungen seit 01.01.23 13:37:00]".
var repetitionPattern = regexp.MustCompile(` \[(\d+) Meldungen seit (\d+\.\d+\.\d+) (\d+:\d+:\d+)\]$`)

// TimestampError reports a date or time field that does not parse or
// does not exist as a local civil time (DST gap).
type TimestampError struct {
	Date string
	Time string
	Err  error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp %q %q: %v", e.Date, e.Time, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// FieldError reports a non-numeric message or category id.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// RepetitionError reports a message carrying a repetition suffix whose
// embedded count or timestamp does not parse. The entry as a whole is
// rejected, never silently stored without its repetition.
type RepetitionError struct {
	Suffix string
	Err    error
}

func (e *RepetitionError) Error() string {
	return fmt.Sprintf("malformed repetition suffix %q: %v", e.Suffix, e.Err)
}

func (e *RepetitionError) Unwrap() error { return e.Err }

// Parser normalizes raw device entries. The device reports civil time in
// its own timezone; loc decides how that is mapped to absolute time.
type Parser struct {
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// Parse normalizes one raw entry into a Record. It is deterministic and
// performs no I/O; each entry fails on its own.
func (p *Parser) Parse(raw RawEntry) (model.Record, error) {
	ts, err := p.parseDateTime(raw.Date, raw.Time)
	if err != nil {
		return model.Record{}, err
	}

	messageID, err := strconv.ParseInt(raw.MessageID, 10, 64)
	if err != nil {
		return model.Record{}, &FieldError{Field: "message id", Value: raw.MessageID, Err: err}
	}
	categoryID, err := strconv.ParseInt(raw.CategoryID, 10, 64)
	if err != nil {
		return model.Record{}, &FieldError{Field: "category id", Value: raw.CategoryID, Err: err}
	}

	message, repetition, err := p.splitRepetition(raw.Message)
	if err != nil {
		return model.Record{}, err
	}

	return model.Record{
		Timestamp:  ts,
		Message:    message,
		MessageID:  messageID,
		CategoryID: categoryID,
		Repetition: repetition,
	}, nil
}

// ParseAll normalizes a whole batch, preserving order. The first failing
// entry aborts the batch with its index attached.
func (p *Parser) ParseAll(raw []RawEntry) ([]model.Record, error) {
	records := make([]model.Record, 0, len(raw))
	for i, entry := range raw {
		record, err := p.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *Parser) parseDateTime(date, timeOfDay string) (time.Time, error) {
	combined := date + " " + timeOfDay
	naive, err := time.Parse(dateLayout+" "+timeLayout, combined)
	if err != nil {
		return time.Time{}, &TimestampError{Date: date, Time: timeOfDay, Err: err}
	}
	ts := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), 0, p.loc)
	// A civil time falling into a DST gap gets normalized forward; the
	// shifted wall clock no longer matches and the entry is rejected.
	if !sameWallClock(ts, naive) {
		return time.Time{}, &TimestampError{
			Date: date,
			Time: timeOfDay,
			Err:  fmt.Errorf("no such local time in %s", p.loc),
		}
	}
	// Clocks rolled back: the same wall clock names two instants an hour
	// apart and the entry cannot be pinned to either one.
	if sameWallClock(ts.Add(-time.Hour), naive) || sameWallClock(ts.Add(time.Hour), naive) {
		return time.Time{}, &TimestampError{
			Date: date,
			Time: timeOfDay,
			Err:  fmt.Errorf("ambiguous local time in %s", p.loc),
		}
	}
	return ts, nil
}

func sameWallClock(ts, naive time.Time) bool {
	return ts.Day() == naive.Day() &&
		ts.Hour() == naive.Hour() &&
		ts.Minute() == naive.Minute()
}

// splitRepetition strips the repetition suffix off the message, if any,
// and parses it. The stored message never contains the suffix.
func (p *Parser) splitRepetition(message string) (string, *model.Repetition, error) {
	m := repetitionPattern.FindStringSubmatch(message)
	if m == nil {
		return message, nil, nil
	}
	suffix, count, date, timeOfDay := m[0], m[1], m[2], m[3]

	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return "", nil, &RepetitionError{Suffix: suffix, Err: err}
	}
	firstSeen, err := p.parseDateTime(date, timeOfDay)
	if err != nil {
		return "", nil, &RepetitionError{Suffix: suffix, Err: err}
	}

	return message[:len(message)-len(suffix)], &model.Repetition{
		FirstSeen: firstSeen,
		Count:     n,
	}, nil
}

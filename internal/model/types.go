package model

import "time"

// Device log categories as reported by the FRITZ!Box web interface.
const (
	CategorySystem   int64 = 1
	CategoryInternet int64 = 2
	CategoryPhone    int64 = 3
	CategoryWLAN     int64 = 4
	CategoryUSB      int64 = 5
)

func CategoryName(id int64) string {
	switch id {
	case CategorySystem:
		return "system"
	case CategoryInternet:
		return "internet"
	case CategoryPhone:
		return "phone"
	case CategoryWLAN:
		return "wlan"
	case CategoryUSB:
		return "usb"
	}
	return "unknown"
}

// Repetition is present when the device collapsed several identical
// messages into one log line. FirstSeen is the time the message was
// first logged, Count how often it was logged since then.
type Repetition struct {
	FirstSeen time.Time `json:"first_seen"`
	Count     int64     `json:"count"`
}

// Record is one normalized entry from the device log feed.
//
// Timestamp is the time the entry was last reported; a repetition
// counter advancing counts as an update of the same entry.
type Record struct {
	Timestamp  time.Time   `json:"timestamp"`
	Message    string      `json:"message"`
	MessageID  int64       `json:"message_id"`
	CategoryID int64       `json:"category_id"`
	Repetition *Repetition `json:"repetition,omitempty"`
}

// Key identifies the same logical entry across polls: while the device
// keeps collapsing repeats, Timestamp and Repetition.Count move but the
// first-seen time, message id and category id stay fixed.
type Key struct {
	EarliestMilli int64
	MessageID     int64
	CategoryID    int64
}

// EarliestUnixMilli is the UTC-millisecond time the entry first appeared:
// the repetition's first-seen time if present, the timestamp otherwise.
func (r Record) EarliestUnixMilli() int64 {
	if r.Repetition != nil {
		return r.Repetition.FirstSeen.UnixMilli()
	}
	return r.Timestamp.UnixMilli()
}

// LatestUnixMilli is the UTC-millisecond time the entry was last reported.
func (r Record) LatestUnixMilli() int64 {
	return r.Timestamp.UnixMilli()
}

func (r Record) Key() Key {
	return Key{
		EarliestMilli: r.EarliestUnixMilli(),
		MessageID:     r.MessageID,
		CategoryID:    r.CategoryID,
	}
}

// SameEntry reports whether other is the same logical entry, possibly at
// a different point of its repetition history.
func (r Record) SameEntry(other Record) bool {
	return r.Key() == other.Key()
}

// Equal reports full structural equality, repetition included.
func (r Record) Equal(other Record) bool {
	if !r.Timestamp.Equal(other.Timestamp) ||
		r.Message != other.Message ||
		r.MessageID != other.MessageID ||
		r.CategoryID != other.CategoryID {
		return false
	}
	if (r.Repetition == nil) != (other.Repetition == nil) {
		return false
	}
	if r.Repetition == nil {
		return true
	}
	return r.Repetition.FirstSeen.Equal(other.Repetition.FirstSeen) &&
		r.Repetition.Count == other.Repetition.Count
}

// RequestInfo describes one HTTP request made against the device.
type RequestInfo struct {
	Timestamp    time.Time
	Name         string
	URL          string
	Method       string
	DurationMS   int64
	ResponseCode int64
	SessionID    string
}

// UpdateInfo describes one completed poll cycle.
type UpdateInfo struct {
	Timestamp    time.Time
	UpsertedRows int64
}

// PingInfo describes one ICMP echo probe. DurationMS, TTL and Bytes are
// nil when the probe timed out.
type PingInfo struct {
	Timestamp  time.Time
	Target     string
	DurationMS *int64
	TTL        *int64
	Bytes      *int64
}

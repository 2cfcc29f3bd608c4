package fritz

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"time"
)

// SessionID is the 8-byte token identifying a login session. The device
// reports the all-zero id when there is no valid session.
type SessionID [8]byte

func (id SessionID) Valid() bool {
	return id != SessionID{}
}

func (id SessionID) String() string {
	return hex.EncodeToString(id[:])
}

func ParseSessionID(s string) (SessionID, error) {
	var id SessionID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("decode session id: %w", err)
	}
	if len(raw) != len(id) {
		return SessionID{}, fmt.Errorf("session id is %d bytes, want %d", len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}

// Session is a login session owned by the caller. The client never
// holds one itself; orchestration passes it into every fetch call and
// renews it through EnsureSession.
type Session struct {
	ID        SessionID
	RenewedAt time.Time
}

func (s Session) Valid() bool {
	return s.ID.Valid()
}

// User is one login account the device advertises in its challenge.
type User struct {
	Name   string
	IsLast bool
}

// SessionInfo is the decoded response of the login endpoint: the
// current session id, a fresh challenge, the lockout time after failed
// attempts, and the known users.
type SessionInfo struct {
	SessionID SessionID
	Challenge Challenge
	BlockTime time.Duration
	Users     []User
}

func (si SessionInfo) HasUser(username string) bool {
	for _, user := range si.Users {
		if user.Name == username {
			return true
		}
	}
	return false
}

type sessionInfoXML struct {
	XMLName   xml.Name `xml:"SessionInfo"`
	SID       string   `xml:"SID"`
	Challenge string   `xml:"Challenge"`
	BlockTime int      `xml:"BlockTime"`
	Users     []struct {
		Last string `xml:"last,attr"`
		Name string `xml:",chardata"`
	} `xml:"Users>User"`
}

// ParseSessionInfo decodes the XML document returned by login_sid.lua.
func ParseSessionInfo(doc []byte) (SessionInfo, error) {
	var raw sessionInfoXML
	if err := xml.Unmarshal(doc, &raw); err != nil {
		return SessionInfo{}, fmt.Errorf("parse session info xml: %w", err)
	}

	id, err := ParseSessionID(raw.SID)
	if err != nil {
		return SessionInfo{}, err
	}
	challenge, err := ParseChallenge(raw.Challenge)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("parse challenge: %w", err)
	}

	info := SessionInfo{
		SessionID: id,
		Challenge: challenge,
		BlockTime: time.Duration(raw.BlockTime) * time.Second,
	}
	for _, user := range raw.Users {
		info.Users = append(info.Users, User{
			Name:   user.Name,
			IsLast: user.Last == "1",
		})
	}
	return info, nil
}

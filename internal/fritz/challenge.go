package fritz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Challenge is the parsed login challenge issued by the device:
// "2$<rounds1>$<salt1 hex>$<rounds2>$<salt2 hex>".
//
// See AVM's technical note on the version 2 session id scheme.
type Challenge struct {
	Salt1   [16]byte
	Rounds1 int
	Salt2   [16]byte
	Rounds2 int
}

// ChallengeResponse is what gets sent back: the second salt and the
// doubly-derived hash, both hex encoded and joined by '$'.
type ChallengeResponse struct {
	Salt [16]byte
	Hash [32]byte
}

func (r ChallengeResponse) String() string {
	return hex.EncodeToString(r.Salt[:]) + "$" + hex.EncodeToString(r.Hash[:])
}

// ParseChallenge parses a challenge string. Only version "2" is
// accepted; anything else, including a wrong field count or salt
// length, is a hard failure.
func ParseChallenge(s string) (Challenge, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 5 {
		return Challenge{}, fmt.Errorf("challenge has %d fields, want 5", len(parts))
	}
	if parts[0] != "2" {
		return Challenge{}, fmt.Errorf("unsupported challenge version %q", parts[0])
	}

	rounds1, err := strconv.Atoi(parts[1])
	if err != nil {
		return Challenge{}, fmt.Errorf("parse rounds_1: %w", err)
	}
	rounds2, err := strconv.Atoi(parts[3])
	if err != nil {
		return Challenge{}, fmt.Errorf("parse rounds_2: %w", err)
	}

	var ch Challenge
	ch.Rounds1 = rounds1
	ch.Rounds2 = rounds2
	if err := decodeSalt(parts[2], ch.Salt1[:]); err != nil {
		return Challenge{}, fmt.Errorf("decode salt_1: %w", err)
	}
	if err := decodeSalt(parts[4], ch.Salt2[:]); err != nil {
		return Challenge{}, fmt.Errorf("decode salt_2: %w", err)
	}
	return ch, nil
}

func decodeSalt(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("salt is %d bytes, want %d", len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// Respond derives the response for this challenge: two chained rounds
// of PBKDF2-HMAC-SHA256, 32 bytes each.
func (c Challenge) Respond(password string) ChallengeResponse {
	hash1 := pbkdf2.Key([]byte(password), c.Salt1[:], c.Rounds1, 32, sha256.New)
	hash2 := pbkdf2.Key(hash1, c.Salt2[:], c.Rounds2, 32, sha256.New)

	var resp ChallengeResponse
	resp.Salt = c.Salt2
	copy(resp.Hash[:], hash2)
	return resp
}

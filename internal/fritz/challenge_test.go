package fritz

import (
	"encoding/hex"
	"testing"
)

// Vector captured from a real device login.
const (
	testChallenge = "2$60000$d4949767019d1e6eed27c27f404c7aa7$6000$4f3415a3b5396a9675d08906ee6a6933"
	testPassword  = "vorab9049"
	testResponse  = "4f3415a3b5396a9675d08906ee6a6933$16a4a11987d802c6f3e67d91d1425b5a0eade78561a5810ef905372ab1da53ca"
)

func TestParseChallenge(t *testing.T) {
	ch, err := ParseChallenge(testChallenge)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ch.Rounds1 != 60000 || ch.Rounds2 != 6000 {
		t.Fatalf("rounds = %d/%d, want 60000/6000", ch.Rounds1, ch.Rounds2)
	}
	if got := hex.EncodeToString(ch.Salt1[:]); got != "d4949767019d1e6eed27c27f404c7aa7" {
		t.Fatalf("salt1 = %s", got)
	}
	if got := hex.EncodeToString(ch.Salt2[:]); got != "4f3415a3b5396a9675d08906ee6a6933" {
		t.Fatalf("salt2 = %s", got)
	}
}

func TestParseChallengeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"version 1", "1$60000$d4949767019d1e6eed27c27f404c7aa7$6000$4f3415a3b5396a9675d08906ee6a6933"},
		{"too few fields", "2$60000$d4949767019d1e6eed27c27f404c7aa7"},
		{"non-numeric rounds", "2$abc$d4949767019d1e6eed27c27f404c7aa7$6000$4f3415a3b5396a9675d08906ee6a6933"},
		{"short salt", "2$60000$d494$6000$4f3415a3b5396a9675d08906ee6a6933"},
		{"non-hex salt", "2$60000$zzzz9767019d1e6eed27c27f404c7aa7$6000$4f3415a3b5396a9675d08906ee6a6933"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseChallenge(tc.in); err == nil {
				t.Fatalf("accepted %q", tc.in)
			}
		})
	}
}

func TestRespondMatchesDeviceVector(t *testing.T) {
	ch, err := ParseChallenge(testChallenge)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ch.Respond(testPassword).String(); got != testResponse {
		t.Fatalf("response = %s, want %s", got, testResponse)
	}
}

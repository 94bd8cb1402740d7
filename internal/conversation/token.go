package conversation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/example/ridepool/internal/models"
)

const tokenVersion = 1

// Token is the small per-turn payload the caller round-trips between
// messages: conversation state, detected language, and a reference to
// the active session row. The row store stays authoritative; the token
// only carries continuity.
type Token struct {
	Version   int                      `json:"v"`
	State     models.ConversationState `json:"state"`
	Language  string                   `json:"lang,omitempty"`
	SessionID string                   `json:"session_id,omitempty"`
}

// EncodeToken serializes a token for the session cookie.
func EncodeToken(t Token) string {
	t.Version = tokenVersion
	b, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeToken fails closed: a missing, malformed, or unrecognized
// token always resolves to the Initial state, never an error.
func DecodeToken(raw string) Token {
	fallback := Token{Version: tokenVersion, State: models.StateInitial}
	if raw == "" {
		return fallback
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return fallback
	}
	var t Token
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return fallback
	}
	if t.Version != tokenVersion || !t.State.Valid() {
		return fallback
	}
	return t
}

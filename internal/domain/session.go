package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single message in a conversation.
// Partial marks an assistant turn recorded after the upstream stream failed.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Partial   bool      `json:"partial,omitempty"`
}

// NewTurn creates a turn stamped with the current wall-clock time in UTC.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: Now()}
}

// Now returns the current UTC time with the monotonic reading stripped, so
// values survive a round trip through any store unchanged.
func Now() time.Time {
	return time.Now().UTC().Round(0).Truncate(time.Microsecond)
}

// Key returns the structural identity of a turn: role, content and timestamp.
func (t Turn) Key() string {
	ts := ""
	if !t.Timestamp.IsZero() {
		ts = t.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return hashParts(string(t.Role), t.Content, ts)
}

// LooseKey ignores the timestamp. Used when one side carries no timestamps.
func (t Turn) LooseKey() string {
	return hashParts(string(t.Role), t.Content)
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Session tracks a live conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Turns     []Turn    `json:"turns,omitempty"`
}

// Transcript is the persisted form of a conversation.
type Transcript struct {
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Turns     []Turn    `json:"turns"`
}

// TranscriptSummary is a lightweight listing entry for a persisted transcript.
type TranscriptSummary struct {
	SessionID string    `json:"sessionId"`
	Turns     int       `json:"turns"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidSessionID reports whether id is safe to use as a session key in file
// names and remote object names.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > 128 || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

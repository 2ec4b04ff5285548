package conversation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/chatrelay/internal/domain"
)

// Registry holds the in-memory conversation log of every live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*domain.Session)}
}

// Begin registers a session. An empty id generates a new one. Beginning a
// known id is a no-op and returns the same id.
func (r *Registry) Begin(id string) string {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		now := domain.Now()
		r.sessions[id] = &domain.Session{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	return id
}

// Restore registers a session seeded with previously persisted turns. A
// trailing user turn with no reply is dropped so the session can take the
// next message. Returns false if the session is already live; its log is
// left untouched.
func (r *Registry) Restore(id string, turns []domain.Turn) bool {
	turns = CompleteRounds(turns)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return false
	}
	now := domain.Now()
	r.sessions[id] = &domain.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     append([]domain.Turn(nil), turns...),
	}
	return true
}

// Exists reports whether id names a live session.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// List returns the ids of all live sessions, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AppendUser records a user turn.
func (r *Registry) AppendUser(id, text string) (domain.Turn, error) {
	return r.append(id, domain.NewTurn(domain.RoleUser, text))
}

// AppendAssistant records an assistant turn. partial marks a reply cut short
// by an upstream failure.
func (r *Registry) AppendAssistant(id, text string, partial bool) (domain.Turn, error) {
	turn := domain.NewTurn(domain.RoleAssistant, text)
	turn.Partial = partial
	return r.append(id, turn)
}

func (r *Registry) append(id string, turn domain.Turn) (domain.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return domain.Turn{}, fmt.Errorf("%w: %s", domain.ErrInvalidSession, id)
	}

	var last domain.Role
	if n := len(sess.Turns); n > 0 {
		last = sess.Turns[n-1].Role
	}
	switch turn.Role {
	case domain.RoleUser:
		if last == domain.RoleUser {
			return domain.Turn{}, fmt.Errorf("%w: user turn follows user turn in %s", domain.ErrTurnOrder, id)
		}
	case domain.RoleAssistant:
		if last != domain.RoleUser {
			return domain.Turn{}, fmt.Errorf("%w: assistant turn without preceding user turn in %s", domain.ErrTurnOrder, id)
		}
	}

	// Timestamps never go backwards within a session.
	if n := len(sess.Turns); n > 0 && turn.Timestamp.Before(sess.Turns[n-1].Timestamp) {
		turn.Timestamp = sess.Turns[n-1].Timestamp
	}

	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = turn.Timestamp
	return turn, nil
}

// Snapshot returns an independent copy of the session's turns.
func (r *Registry) Snapshot(id string) ([]domain.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSession, id)
	}
	return append([]domain.Turn(nil), sess.Turns...), nil
}

// CompleteRounds returns turns without a trailing user turn. A round is only
// complete once its assistant turn has been recorded.
func CompleteRounds(turns []domain.Turn) []domain.Turn {
	if n := len(turns); n > 0 && turns[n-1].Role == domain.RoleUser {
		return turns[:n-1]
	}
	return turns
}

// MergeWithPersisted returns the turns of the session's current log that are
// not already present in persisted, in log order.
func (r *Registry) MergeWithPersisted(id string, persisted []domain.Turn) ([]domain.Turn, error) {
	snap, err := r.Snapshot(id)
	if err != nil {
		return nil, err
	}
	return NewTurns(snap, persisted), nil
}

// NewTurns returns the elements of current missing from persisted. Turns are
// matched by role, content and timestamp; a persisted turn without a
// timestamp matches on role and content alone. Matching is count-aware so a
// repeated message is only absorbed as many times as it was persisted.
func NewTurns(current, persisted []domain.Turn) []domain.Turn {
	strict := make(map[string]int, len(persisted))
	loose := make(map[string]int)
	for _, t := range persisted {
		if t.Timestamp.IsZero() {
			loose[t.LooseKey()]++
		} else {
			strict[t.Key()]++
		}
	}

	var out []domain.Turn
	for _, t := range current {
		if k := t.Key(); strict[k] > 0 {
			strict[k]--
			continue
		}
		if k := t.LooseKey(); loose[k] > 0 {
			loose[k]--
			continue
		}
		out = append(out, t)
	}
	return out
}

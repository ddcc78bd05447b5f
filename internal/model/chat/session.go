package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCorruptState marks persisted session state that is present but
// unreadable or invariant-violating. Callers recover by starting a
// fresh session, never by repairing the file.
var ErrCorruptState = errors.New("corrupt session state")

// Session is the full ordered history of turns for one conversation
// thread. Turns are only ever appended; insertion order equals
// sequence-index order.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Turns     []Turn    `json:"turns"`
}

// NewSession provisions an empty session.
func NewSession() Session {
	now := time.Now().UTC()
	return Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a turn with the next sequence index. Pure in-memory
// mutation; persistence is the caller's decision.
func (s *Session) Append(role Role, content string) Turn {
	turn := Turn{
		Role:          role,
		Content:       content,
		SequenceIndex: len(s.Turns),
		CreatedAt:     time.Now().UTC(),
	}
	s.Turns = append(s.Turns, turn)
	return turn
}

// AppendPartial records an assistant turn whose stream was cut off
// before completion. The content is exactly what was received.
func (s *Session) AppendPartial(content string) Turn {
	turn := Turn{
		Role:          RoleAssistant,
		Content:       content,
		SequenceIndex: len(s.Turns),
		CreatedAt:     time.Now().UTC(),
		Partial:       true,
	}
	s.Turns = append(s.Turns, turn)
	return turn
}

// TruncateOldest drops the n oldest turns, then any leading assistant
// turns, and reassigns sequence indexes from 0. This is the explicit
// recovery path when the provider rejects the context size; it is
// never invoked automatically.
func (s *Session) TruncateOldest(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.Turns) {
		n = len(s.Turns)
	}
	remaining := s.Turns[n:]
	for len(remaining) > 0 && remaining[0].Role != RoleUser {
		remaining = remaining[1:]
	}

	turns := make([]Turn, len(remaining))
	copy(turns, remaining)
	for i := range turns {
		turns[i].SequenceIndex = i
	}
	s.Turns = turns
}

// Validate checks the session invariants: contiguous sequence indexes
// starting at 0, known roles, non-empty content, a user turn first,
// and no adjacent assistant turns. Adjacent user turns are allowed: a
// continuation, or a retry after a failed dispatch, leaves a trailing
// user turn behind.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrCorruptState)
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation time", ErrCorruptState)
	}

	for i, turn := range s.Turns {
		if turn.SequenceIndex != i {
			return fmt.Errorf("%w: sequence index %d at position %d", ErrCorruptState, turn.SequenceIndex, i)
		}
		if !turn.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q at turn %d", ErrCorruptState, turn.Role, i)
		}
		if turn.Content == "" {
			return fmt.Errorf("%w: empty content at turn %d", ErrCorruptState, i)
		}
		if turn.CreatedAt.IsZero() {
			return fmt.Errorf("%w: missing timestamp at turn %d", ErrCorruptState, i)
		}
		if i == 0 && turn.Role != RoleUser {
			return fmt.Errorf("%w: first turn has role %q", ErrCorruptState, turn.Role)
		}
		if i > 0 && turn.Role == RoleAssistant && s.Turns[i-1].Role == RoleAssistant {
			return fmt.Errorf("%w: adjacent assistant turns at %d", ErrCorruptState, i)
		}
	}
	return nil
}

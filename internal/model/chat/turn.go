package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one exchange unit in a conversation. SequenceIndex is
// assigned at append time and defines the total order; CreatedAt is
// informational only. Partial marks an assistant turn persisted from
// an interrupted stream.
type Turn struct {
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	SequenceIndex int       `json:"sequenceIndex"`
	CreatedAt     time.Time `json:"createdAt"`
	Partial       bool      `json:"partial,omitempty"`
}

package conversation

import "github.com/edi-chat/edi/internal/model/chat"

// BuildContext returns the context replayed to the remote model: the
// session's full recorded history in sequence order, with the pending
// user turn logically last. Pure and deterministic; no windowing is
// applied here, the provider owns context-length limits.
func BuildContext(session chat.Session, userTurn chat.Turn) []chat.Turn {
	context := make([]chat.Turn, 0, len(session.Turns)+1)
	context = append(context, session.Turns...)
	context = append(context, userTurn)
	return context
}

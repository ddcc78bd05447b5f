package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/edi-chat/edi/internal/model/chat"
	"github.com/edi-chat/edi/internal/service/ai"
)

type memStore struct {
	session chat.Session
	found   bool
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load() (chat.Session, bool, error) {
	if s.loadErr != nil {
		return chat.Session{}, false, s.loadErr
	}
	return s.session, s.found, nil
}

func (s *memStore) Save(session chat.Session) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.session = session
	s.found = true
	s.saves++
	return nil
}

type fakeStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() { s.closed = true }

type fakeTransport struct {
	streams  []*fakeStream
	sendErr  error
	contexts [][]chat.Turn
}

func (t *fakeTransport) Send(_ context.Context, turns []chat.Turn) (ai.TokenStream, error) {
	recorded := make([]chat.Turn, len(turns))
	copy(recorded, turns)
	t.contexts = append(t.contexts, recorded)

	if t.sendErr != nil {
		return nil, t.sendErr
	}
	stream := t.streams[0]
	t.streams = t.streams[1:]
	return stream, nil
}

type queueInput struct {
	messages []string
}

func (q *queueInput) ReadMessage() (string, error) {
	if len(q.messages) == 0 {
		return "", io.EOF
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, nil
}

func newTestRunner(store Store, transport Transport, input Input) (*Runner, *bytes.Buffer) {
	var out bytes.Buffer
	return NewRunner(store, transport, input, &out, zerolog.Nop()), &out
}

func TestFreshSessionSingleExchange(t *testing.T) {
	store := &memStore{}
	transport := &fakeTransport{streams: []*fakeStream{{chunks: []string{"Hi the", "re!"}}}}
	runner, out := newTestRunner(store, transport, &queueInput{messages: []string{"Hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	session := runner.Session()
	if len(session.Turns) != 2 {
		t.Fatalf("turn count = %d, want 2", len(session.Turns))
	}
	if session.Turns[0].Role != chat.RoleUser || session.Turns[0].Content != "Hello" || session.Turns[0].SequenceIndex != 0 {
		t.Fatalf("user turn = %+v", session.Turns[0])
	}
	if session.Turns[1].Role != chat.RoleAssistant || session.Turns[1].Content != "Hi there!" || session.Turns[1].SequenceIndex != 1 {
		t.Fatalf("assistant turn = %+v", session.Turns[1])
	}
	if store.saves != 2 {
		t.Fatalf("saves = %d, want one per turn", store.saves)
	}
	if !strings.Contains(out.String(), "Hi there!") {
		t.Fatalf("response not echoed: %q", out.String())
	}
}

func TestContinuedSessionReplaysFullHistory(t *testing.T) {
	prior := chat.NewSession()
	prior.Append(chat.RoleUser, "q1")
	prior.Append(chat.RoleAssistant, "a1")
	prior.Append(chat.RoleUser, "q2")
	prior.Append(chat.RoleAssistant, "a2")

	store := &memStore{session: prior, found: true}
	transport := &fakeTransport{streams: []*fakeStream{{chunks: []string{"a3"}}}}
	runner, _ := newTestRunner(store, transport, &queueInput{messages: []string{"q3"}})

	runner.Start(true)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if len(transport.contexts) != 1 {
		t.Fatalf("dispatch count = %d, want 1", len(transport.contexts))
	}
	sent := transport.contexts[0]
	if len(sent) != 5 {
		t.Fatalf("context length = %d, want 5", len(sent))
	}
	for i, content := range []string{"q1", "a1", "q2", "a2", "q3"} {
		if sent[i].Content != content {
			t.Fatalf("context[%d] = %q, want %q", i, sent[i].Content, content)
		}
	}
	if len(runner.Session().Turns) != 6 {
		t.Fatalf("turn count = %d, want 6", len(runner.Session().Turns))
	}
}

func TestTransportFailureKeepsUserTurnOnly(t *testing.T) {
	store := &memStore{}
	transport := &fakeTransport{sendErr: errors.New("connection refused")}
	runner, out := newTestRunner(store, transport, &queueInput{messages: []string{"Hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	session := runner.Session()
	if len(session.Turns) != 1 {
		t.Fatalf("turn count = %d, want 1", len(session.Turns))
	}
	if session.Turns[0].Role != chat.RoleUser {
		t.Fatalf("surviving turn role = %q", session.Turns[0].Role)
	}
	if !strings.Contains(out.String(), "Error: connection refused") {
		t.Fatalf("error not surfaced: %q", out.String())
	}
	// The persisted copy matches the working copy.
	if len(store.session.Turns) != 1 {
		t.Fatalf("persisted turn count = %d, want 1", len(store.session.Turns))
	}
}

func TestMidStreamFailurePersistsExactPartial(t *testing.T) {
	store := &memStore{}
	stream := &fakeStream{chunks: []string{"Hel"}, err: errors.New("stream reset")}
	transport := &fakeTransport{streams: []*fakeStream{stream}}
	runner, _ := newTestRunner(store, transport, &queueInput{messages: []string{"Say hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	session := runner.Session()
	if len(session.Turns) != 2 {
		t.Fatalf("turn count = %d, want 2", len(session.Turns))
	}
	partial := session.Turns[1]
	if partial.Role != chat.RoleAssistant || partial.Content != "Hel" {
		t.Fatalf("partial turn = %+v", partial)
	}
	if !partial.Partial {
		t.Fatal("partial turn not flagged")
	}
	if !stream.closed {
		t.Fatal("stream not closed after failure")
	}
	if err := session.Validate(); err != nil {
		t.Fatalf("Validate err: %v", err)
	}
}

func TestMidStreamFailureWithoutContentPersistsNothing(t *testing.T) {
	store := &memStore{}
	stream := &fakeStream{err: errors.New("stream reset")}
	transport := &fakeTransport{streams: []*fakeStream{stream}}
	runner, _ := newTestRunner(store, transport, &queueInput{messages: []string{"Say hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if len(runner.Session().Turns) != 1 {
		t.Fatalf("turn count = %d, want only the user turn", len(runner.Session().Turns))
	}
}

func TestEmptyResponseAppendsNoTurn(t *testing.T) {
	store := &memStore{}
	transport := &fakeTransport{streams: []*fakeStream{{}}}
	runner, out := newTestRunner(store, transport, &queueInput{messages: []string{"Hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if len(runner.Session().Turns) != 1 {
		t.Fatalf("turn count = %d, want 1", len(runner.Session().Turns))
	}
	if !strings.Contains(out.String(), "No response received.") {
		t.Fatalf("missing empty-response notice: %q", out.String())
	}
}

func TestStoreFailureContinuesInMemory(t *testing.T) {
	store := &memStore{saveErr: fmt.Errorf("%w: disk full", chat.ErrStore)}
	transport := &fakeTransport{streams: []*fakeStream{{chunks: []string{"reply"}}}}
	runner, _ := newTestRunner(store, transport, &queueInput{messages: []string{"Hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	session := runner.Session()
	if len(session.Turns) != 2 {
		t.Fatalf("in-memory turn count = %d, want 2", len(session.Turns))
	}
}

func TestStartFallsBackOnCorruptState(t *testing.T) {
	store := &memStore{loadErr: fmt.Errorf("%w: sequence gap", chat.ErrCorruptState)}
	runner, _ := newTestRunner(store, &fakeTransport{}, &queueInput{})

	runner.Start(true)

	session := runner.Session()
	if len(session.Turns) != 0 {
		t.Fatalf("expected fresh session, got %d turns", len(session.Turns))
	}
	if session.ID == "" {
		t.Fatal("fresh session missing ID")
	}
}

func TestContextTooLargeSurfacesTrimHint(t *testing.T) {
	store := &memStore{}
	transport := &fakeTransport{sendErr: fmt.Errorf("%w: 9000 tokens", ai.ErrContextTooLarge)}
	runner, out := newTestRunner(store, transport, &queueInput{messages: []string{"Hello"}})

	runner.Start(false)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if !strings.Contains(out.String(), "edi trim") {
		t.Fatalf("missing trim hint: %q", out.String())
	}
}

func TestRunOncePipedMode(t *testing.T) {
	store := &memStore{}
	transport := &fakeTransport{streams: []*fakeStream{{chunks: []string{"full ", "response"}}}}
	runner, out := newTestRunner(store, transport, nil)

	runner.Start(false)
	if err := runner.RunOnce(context.Background(), "piped question"); err != nil {
		t.Fatalf("RunOnce err: %v", err)
	}

	if len(runner.Session().Turns) != 2 {
		t.Fatalf("turn count = %d, want 2", len(runner.Session().Turns))
	}
	if !strings.Contains(out.String(), "piped question") {
		t.Fatalf("input not echoed: %q", out.String())
	}
	if !strings.Contains(out.String(), "full response") {
		t.Fatalf("response not printed: %q", out.String())
	}
}

func TestTrimDropsOldestAndReindexes(t *testing.T) {
	session := chat.NewSession()
	session.Append(chat.RoleUser, "q1")
	session.Append(chat.RoleAssistant, "a1")
	session.Append(chat.RoleUser, "q2")
	session.Append(chat.RoleAssistant, "a2")
	store := &memStore{session: session, found: true}

	removed, err := Trim(store, 1)
	if err != nil {
		t.Fatalf("Trim err: %v", err)
	}
	// q1 plus the now-leading a1.
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if store.session.Turns[0].Content != "q2" || store.session.Turns[0].SequenceIndex != 0 {
		t.Fatalf("first turn after trim = %+v", store.session.Turns[0])
	}
}

func TestTrimWithoutSavedSession(t *testing.T) {
	removed, err := Trim(&memStore{}, 3)
	if err != nil {
		t.Fatalf("Trim err: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

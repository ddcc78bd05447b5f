package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edi-chat/edi/internal/model/chat"
	"github.com/edi-chat/edi/internal/service/ai"
)

const (
	inputPrompt  = ">>> \n"
	outputPrompt = "\n<<< \n"
)

// Store abstracts the durable session store.
type Store interface {
	Load() (chat.Session, bool, error)
	Save(chat.Session) error
}

// Transport sends an ordered turn context to the remote model and
// returns the lazy response stream.
type Transport interface {
	Send(ctx context.Context, turns []chat.Turn) (ai.TokenStream, error)
}

// Input supplies user messages. io.EOF is the end-of-input signal
// (blank message or Ctrl-D).
type Input interface {
	ReadMessage() (string, error)
}

// Runner drives the conversation loop: read input, extend the
// session, dispatch the context, drain the response, persist. It owns
// the working session copy for the duration of one run and hands it
// back to the store only through Save.
type Runner struct {
	store     Store
	transport Transport
	input     Input
	out       io.Writer
	logger    zerolog.Logger
	session   chat.Session
}

// NewRunner wires the controller to its collaborators.
func NewRunner(store Store, transport Transport, input Input, out io.Writer, logger zerolog.Logger) *Runner {
	return &Runner{
		store:     store,
		transport: transport,
		input:     input,
		out:       out,
		logger:    logger.With().Str("component", "conversation").Logger(),
	}
}

// Start initializes the working session. With continueSession the
// persisted session is loaded; corrupt state is surfaced and replaced
// by a fresh session, never repaired.
func (r *Runner) Start(continueSession bool) {
	r.session = chat.NewSession()
	if !continueSession {
		return
	}

	session, found, err := r.store.Load()
	if err != nil {
		if errors.Is(err, chat.ErrCorruptState) {
			r.logger.Warn().Err(err).Msg("saved session is corrupt, starting fresh")
		} else {
			r.logger.Warn().Err(err).Msg("could not read saved session, starting fresh")
		}
		return
	}
	if !found {
		r.logger.Debug().Msg("no saved session to continue")
		return
	}

	r.session = session
	r.logger.Info().Str("session", session.ID).Int("turns", len(session.Turns)).Msg("continuing saved session")
}

// Session exposes the working copy.
func (r *Runner) Session() chat.Session {
	return r.session
}

// Run is the interactive loop. It returns when the input capability
// signals end of input, or when the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		fmt.Fprint(r.out, inputPrompt)

		text, err := r.input.ReadMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		if err := r.exchange(ctx, text); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(r.out, "\n<<< Error: %v\n", err)
			if errors.Is(err, ai.ErrContextTooLarge) {
				fmt.Fprintln(r.out, "Run 'edi trim <n>' to drop the oldest turns, then retry.")
			}
		}
	}
}

// RunOnce is the non-interactive single-shot mode: one user turn from
// piped stdin, one dispatch, full response printed.
func (r *Runner) RunOnce(ctx context.Context, text string) error {
	fmt.Fprint(r.out, inputPrompt)
	fmt.Fprint(r.out, text)
	return r.exchange(ctx, text)
}

// exchange performs one Dispatching → StreamingResponse cycle. The
// user turn is appended and persisted before the transport is
// invoked, so a transport failure loses nothing; the assistant turn
// is appended exactly once, after the stream is fully drained.
func (r *Runner) exchange(ctx context.Context, text string) error {
	prior := r.session
	userTurn := r.session.Append(chat.RoleUser, text)
	r.persist()

	turns := BuildContext(prior, userTurn)

	stream, err := r.transport.Send(ctx, turns)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Fprint(r.out, outputPrompt)

	var reply strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			// Persist exactly what arrived, flagged partial, or
			// nothing at all. Never a fabricated completion.
			r.finishPartial(reply.String())
			return recvErr
		}

		reply.WriteString(chunk)
		fmt.Fprint(r.out, chunk)
	}
	fmt.Fprintln(r.out)

	content := reply.String()
	if content == "" {
		fmt.Fprintln(r.out, "<<< No response received.")
		return nil
	}

	r.session.Append(chat.RoleAssistant, content)
	r.persist()
	return nil
}

func (r *Runner) finishPartial(content string) {
	if content == "" {
		return
	}
	r.session.AppendPartial(content)
	r.persist()
	r.logger.Warn().Int("bytes", len(content)).Msg("stream interrupted, partial reply persisted")
}

// persist saves after every turn so a kill loses at most the
// in-flight turn. A failing store is surfaced and the conversation
// continues in-memory.
func (r *Runner) persist() {
	if err := r.store.Save(r.session); err != nil {
		r.logger.Warn().Err(err).Msg("session not persisted, continuing in-memory")
	}
}

// Trim applies the explicit context-recovery operation to the
// persisted session and reports how many turns were dropped.
func Trim(store Store, n int) (int, error) {
	session, found, err := store.Load()
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	before := len(session.Turns)
	session.TruncateOldest(n)
	if err := store.Save(session); err != nil {
		return 0, err
	}
	return before - len(session.Turns), nil
}

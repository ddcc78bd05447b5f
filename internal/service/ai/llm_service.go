package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/edi-chat/edi/internal/config"
	"github.com/edi-chat/edi/internal/model/chat"
)

// ErrContextTooLarge marks a provider rejection of the submitted
// context size. Recovery is the explicit trim operation, never an
// automatic truncation.
var ErrContextTooLarge = errors.New("context rejected as too large")

// TokenStream is a lazy sequence of response text chunks. Recv
// returns io.EOF once the stream is drained.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// Service is the transport to the remote model: it replays the
// ordered turn context through an eino chain and exposes the response
// as a TokenStream.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	stream    bool
	logger    zerolog.Logger
}

// NewService builds the chat chain for the configured provider.
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		stream:    cfg.Stream,
		logger:    logger.With().Str("component", "transport").Logger(),
	}, nil
}

// Send submits the full context, ending with the pending user turn,
// and returns the response stream. When streaming is disabled the
// whole response is surfaced as a single chunk so callers keep one
// drain path.
func (s *Service) Send(ctx context.Context, turns []chat.Turn) (TokenStream, error) {
	if len(turns) == 0 {
		return nil, errors.New("empty context")
	}
	last := turns[len(turns)-1]
	if last.Role != chat.RoleUser {
		return nil, fmt.Errorf("context must end with a user turn, got %q", last.Role)
	}

	input := map[string]any{
		"history": historyMessages(turns[:len(turns)-1]),
		"query":   last.Content,
	}

	s.logger.Debug().Int("turns", len(turns)).Bool("stream", s.stream).Msg("dispatching context")

	if s.stream {
		reader, err := s.chain.Stream(ctx, input)
		if err != nil {
			return nil, classify(err)
		}
		return &chainStream{reader: reader}, nil
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return nil, classify(err)
	}
	return &singleChunkStream{content: response.Content}, nil
}

// historyMessages maps prior turns onto the chain's history
// placeholder. The whole recorded history is replayed; context-length
// limits are the provider's to enforce.
func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

// classify maps provider context-length rejections onto
// ErrContextTooLarge and passes everything else through as a plain
// transport failure.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"context length", "context_length", "maximum context", "too many tokens", "prompt is too long"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrContextTooLarge, err)
		}
	}
	return err
}

// chainStream adapts eino's stream reader to TokenStream, skipping
// empty keepalive chunks.
type chainStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *chainStream) Recv() (string, error) {
	for {
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classify(err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (s *chainStream) Close() {
	s.reader.Close()
}

// singleChunkStream exposes a whole response through the TokenStream
// contract.
type singleChunkStream struct {
	content string
	done    bool
}

func (s *singleChunkStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.content, nil
}

func (s *singleChunkStream) Close() {}

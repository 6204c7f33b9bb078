// Package gateway wraps the hosted LLM clients behind one entry point that
// rotates through a pool of API keys when a key runs out of quota.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	openai_tools "github.com/iamvkosarev/persona-chat/pkg/openai-tools"
)

type Turn struct {
	Role        model.Role
	Text        string
	Attachments []model.Attachment
}

type Request struct {
	Model     string
	System    string
	History   []Turn
	Turn      Turn
	WebSearch bool
	Schema    *jsonschema.Definition
}

type Chunk struct {
	Text    string
	Sources []model.GroundingSource
}

// Stream yields chunks until io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider is one LLM client bound to a single credential.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Generate(ctx context.Context, req Request) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateSpeech(ctx context.Context, text, voice string) ([]byte, error)
}

type StreamOptions struct {
	WebSearch      bool
	DeepThinking   bool
	SystemOverride string
}

type TokenCounter func(messages []openai.ChatCompletionMessage, model string) (int, error)

type Option func(*Gateway)

// WithHistoryBudget trims the oldest turns until the prompt fits maxTokens.
func WithHistoryBudget(maxTokens int) Option {
	return func(g *Gateway) {
		g.maxHistoryTokens = maxTokens
	}
}

func WithTokenCounter(counter TokenCounter) Option {
	return func(g *Gateway) {
		g.countTokens = counter
	}
}

type Gateway struct {
	mu        sync.Mutex
	providers []Provider
	index     int

	maxHistoryTokens int
	countTokens      TokenCounter
}

func New(providers []Provider, opts ...Option) *Gateway {
	g := &Gateway{
		providers:   providers,
		countTokens: openai_tools.CountToken,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Index is the credential the next call starts with.
func (g *Gateway) Index() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index
}

func (g *Gateway) setIndex(i int) {
	g.mu.Lock()
	g.index = i
	g.mu.Unlock()
}

// withRotation runs call with the current credential and moves to the next one
// on quota errors. One full lap without success fails with ErrCredentialsExhausted.
func (g *Gateway) withRotation(ctx context.Context, op string, call func(p Provider) error) error {
	n := len(g.providers)
	if n == 0 {
		return ErrNoCredentials
	}
	start := g.Index()
	idx := start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call(g.providers[idx])
		if err == nil {
			return nil
		}
		if !IsQuotaError(err) {
			return err
		}
		next := (idx + 1) % n
		observability.LoggerFromContext(ctx).Warn(
			"credential quota exhausted, rotating",
			"op", op, "from", idx, "to", next, "error", err,
		)
		g.setIndex(next)
		idx = next
		if idx == start {
			return fmt.Errorf("%s: %w: %v", op, ErrCredentialsExhausted, err)
		}
	}
}

func (g *Gateway) StreamGenerate(
	ctx context.Context,
	persona model.Persona,
	turn Turn,
	history []Turn,
	opts StreamOptions,
) (Stream, error) {
	req := Request{
		Model:     persona.Model,
		System:    BuildSystemPrompt(persona, opts),
		History:   history,
		Turn:      turn,
		WebSearch: opts.WebSearch && persona.Features.WebSearch,
	}
	req.History = g.trimHistory(ctx, req)

	var primed *primedStream
	err := g.withRotation(ctx, "stream", func(p Provider) error {
		stream, err := p.Stream(ctx, req)
		if err != nil {
			return err
		}
		// Quota errors of streaming APIs often surface on the first read.
		chunk, err := stream.Recv()
		if err != nil && !errors.Is(err, io.EOF) {
			_ = stream.Close()
			return err
		}
		primed = &primedStream{Stream: stream, first: chunk, firstErr: err}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return primed, nil
}

func (g *Gateway) GenerateText(ctx context.Context, persona model.Persona, prompt, systemOverride string) (string, error) {
	req := Request{
		Model:  persona.Model,
		System: BuildSystemPrompt(persona, StreamOptions{SystemOverride: systemOverride}),
		Turn:   Turn{Role: model.RoleUser, Text: prompt},
	}
	var text string
	err := g.withRotation(ctx, "generate", func(p Provider) error {
		var err error
		text, err = p.Generate(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	return text, nil
}

// GenerateStructured decodes a schema-constrained answer into out. A body that
// is not valid JSON is logged and reported as ok == false without an error.
func (g *Gateway) GenerateStructured(
	ctx context.Context,
	persona model.Persona,
	prompt, systemOverride string,
	schema *jsonschema.Definition,
	out any,
) (bool, error) {
	req := Request{
		Model:  persona.Model,
		System: BuildSystemPrompt(persona, StreamOptions{SystemOverride: systemOverride}),
		Turn:   Turn{Role: model.RoleUser, Text: prompt},
		Schema: schema,
	}
	var text string
	err := g.withRotation(ctx, "structured", func(p Provider) error {
		var err error
		text, err = p.Generate(ctx, req)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to generate structured response: %w", err)
	}
	if err = json.Unmarshal([]byte(stripJSONFence(text)), out); err != nil {
		observability.LoggerFromContext(ctx).Warn(
			"structured response is not valid json",
			"persona", persona.ID, "raw", text, "error", err,
		)
		return false, nil
	}
	return true, nil
}

func (g *Gateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var url string
	err := g.withRotation(ctx, "image", func(p Provider) error {
		var err error
		url, err = p.GenerateImage(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	return url, nil
}

// GenerateSpeech returns base64-encoded audio.
func (g *Gateway) GenerateSpeech(ctx context.Context, text, voice string) (string, error) {
	var audio []byte
	err := g.withRotation(ctx, "speech", func(p Provider) error {
		var err error
		audio, err = p.GenerateSpeech(ctx, text, voice)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate speech: %w", err)
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

func (g *Gateway) trimHistory(ctx context.Context, req Request) []Turn {
	if g.maxHistoryTokens <= 0 || g.countTokens == nil {
		return req.History
	}
	history := req.History
	for len(history) > 0 {
		messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
		for _, turn := range history {
			messages = append(messages, openai.ChatCompletionMessage{Role: string(turn.Role), Content: turn.Text})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Turn.Text})

		tokenCount, err := g.countTokens(messages, req.Model)
		if err == nil && tokenCount < g.maxHistoryTokens {
			break
		}
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("count token error", "error", err)
		}
		history = history[1:]
	}
	if len(history) != len(req.History) {
		observability.LoggerFromContext(ctx).Info(
			"history trimmed due to token limit",
			"dropped", len(req.History)-len(history),
		)
	}
	return history
}

type primedStream struct {
	Stream
	first    Chunk
	firstErr error
	consumed bool
}

func (s *primedStream) Recv() (Chunk, error) {
	if !s.consumed {
		s.consumed = true
		return s.first, s.firstErr
	}
	if s.firstErr != nil {
		return Chunk{}, s.firstErr
	}
	return s.Stream.Recv()
}

func stripJSONFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

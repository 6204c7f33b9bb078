package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
)

const (
	OpenAIRoleUser      = "user"
	OpenAIRoleAssistant = "assistant"
	OpenAIRoleSystem    = "system"

	searchResultsLimit = 5
)

// Searcher supplies grounding results for providers without native web search.
type Searcher interface {
	WebSearch(ctx context.Context, query string, start int) ([]model.SearchHit, error)
}

type OpenAIConfig struct {
	BaseURL     string
	ImageModel  string
	SpeechModel string
}

type OpenAIProvider struct {
	client   *openai.Client
	cfg      OpenAIConfig
	searcher Searcher
}

func NewOpenAIProvider(apiKey string, cfg OpenAIConfig, searcher Searcher) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = string(openai.TTSModel1)
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		cfg:      cfg,
		searcher: searcher,
	}
}

func (o *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	system, sources := o.ground(ctx, req)
	stream, err := o.client.CreateChatCompletionStream(
		ctx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: o.messages(system, req),
			Stream:   true,
		},
	)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return &openAIStream{stream: stream, sources: sources}, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	system, _ := o.ground(ctx, req)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: o.messages(system, req),
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: req.Schema,
			},
		}
	}
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateImage(
		ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          o.cfg.ImageModel,
			N:              1,
			Size:           openai.CreateImageSize1024x1024,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		},
	)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyResponse
	}
	return resp.Data[0].URL, nil
}

func (o *OpenAIProvider) GenerateSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := o.client.CreateSpeech(
		ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(o.cfg.SpeechModel),
			Input:          text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		},
	)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer resp.Close()
	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech: %w", err)
	}
	return audio, nil
}

func (o *OpenAIProvider) messages(system string, req Request) []openai.ChatCompletionMessage {
	messageHistory := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if system != "" {
		messageHistory = append(
			messageHistory, openai.ChatCompletionMessage{
				Role:    OpenAIRoleSystem,
				Content: system,
			},
		)
	}
	for _, turn := range req.History {
		messageHistory = append(messageHistory, toOpenAIMessage(turn))
	}
	return append(messageHistory, toOpenAIMessage(req.Turn))
}

// ground injects web results into the system prompt when search is requested.
func (o *OpenAIProvider) ground(ctx context.Context, req Request) (string, []model.GroundingSource) {
	if !req.WebSearch || o.searcher == nil || strings.TrimSpace(req.Turn.Text) == "" {
		return req.System, nil
	}
	hits, err := o.searcher.WebSearch(ctx, req.Turn.Text, 1)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("web search for grounding failed", "error", err)
		return req.System, nil
	}
	if len(hits) > searchResultsLimit {
		hits = hits[:searchResultsLimit]
	}
	var b strings.Builder
	b.WriteString(req.System)
	b.WriteString("\n\nنتائج البحث على الويب (استشهد بها عند الحاجة):\n")
	sources := make([]model.GroundingSource, 0, len(hits))
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] %s - %s (%s)\n", i+1, hit.Title, hit.Snippet, hit.Link)
		sources = append(sources, model.GroundingSource{URI: hit.Link, Title: hit.Title})
	}
	return b.String(), sources
}

func toOpenAIMessage(turn Turn) openai.ChatCompletionMessage {
	role := parseRoleToOpenAI(turn.Role)
	if len(turn.Attachments) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: turn.Text}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: turn.Text}}
	for _, att := range turn.Attachments {
		switch {
		case strings.HasPrefix(att.MimeType, "image/"):
			parts = append(
				parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:" + att.MimeType + ";base64," + base64.StdEncoding.EncodeToString(att.Data),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			)
		case strings.HasPrefix(att.MimeType, "text/"), att.MimeType == "application/json":
			parts = append(
				parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: fmt.Sprintf("محتوى الملف %s:\n%s", att.Name, att.Data),
				},
			)
		default:
			parts = append(
				parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: fmt.Sprintf("مرفق: %s (%s)", att.Name, att.MimeType),
				},
			)
		}
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

func parseRoleToOpenAI(role model.Role) string {
	switch role {
	case model.RoleAssistant:
		return OpenAIRoleAssistant
	case model.RoleSystem:
		return OpenAIRoleSystem
	default:
		return OpenAIRoleUser
	}
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || code == "insufficient_quota" || code == "rate_limit_exceeded" {
			return &QuotaError{Err: err}
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &QuotaError{Err: err}
	}
	return err
}

type openAIStream struct {
	stream  *openai.ChatCompletionStream
	sources []model.GroundingSource
}

func (s *openAIStream) Recv() (Chunk, error) {
	response, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, classifyOpenAIError(err)
	}
	chunk := Chunk{Sources: s.sources}
	s.sources = nil
	if len(response.Choices) > 0 {
		chunk.Text = response.Choices[0].Delta.Content
	}
	return chunk, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

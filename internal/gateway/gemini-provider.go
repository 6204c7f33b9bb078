package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"google.golang.org/genai"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const defaultImagenModel = "imagen-3.0-generate-002"

type GeminiConfig struct {
	ImageModel  string
	SpeechModel string
}

type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiProvider creates a Gemini API client bound to one API key.
func NewGeminiProvider(ctx context.Context, apiKey string, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultImagenModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (g *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	seq := g.client.Models.GenerateContentStream(ctx, req.Model, toGeminiContents(req), g.config(req))
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	res, err := g.client.Models.GenerateContent(ctx, req.Model, toGeminiContents(req), g.config(req))
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *GeminiProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	res, err := g.client.Models.GenerateImages(ctx, g.cfg.ImageModel, prompt, nil)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return "", ErrEmptyResponse
	}
	img := res.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.ImageBytes), nil
}

func (g *GeminiProvider) GenerateSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "AUDIO")
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	res, err := g.client.Models.GenerateContent(ctx, g.cfg.SpeechModel, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, ErrEmptyResponse
}

func (g *GeminiProvider) config(req Request) *genai.GenerateContentConfig {
	system := req.System
	cfg := &genai.GenerateContentConfig{}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		if schema, err := json.Marshal(req.Schema); err == nil {
			system += "\n\nأعد JSON فقط مطابقاً للمخطط التالي:\n" + string(schema)
		}
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func toGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, toGeminiContent(turn))
	}
	return append(contents, toGeminiContent(req.Turn))
}

func toGeminiContent(turn Turn) *genai.Content {
	var role genai.Role
	switch turn.Role {
	case model.RoleAssistant:
		role = genai.RoleModel
	default:
		role = genai.RoleUser
	}
	if len(turn.Attachments) == 0 {
		return genai.NewContentFromText(turn.Text, role)
	}
	parts := []*genai.Part{genai.NewPartFromText(turn.Text)}
	for _, att := range turn.Attachments {
		parts = append(parts, genai.NewPartFromBytes(att.Data, att.MimeType))
	}
	return genai.NewContentFromParts(parts, role)
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED") {
		return &QuotaError{Err: err}
	}
	return err
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *geminiStream) Recv() (Chunk, error) {
	res, err, ok := s.next()
	if !ok {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, classifyGeminiError(err)
	}
	chunk := Chunk{Text: res.Text()}
	for _, cand := range res.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			chunk.Sources = append(chunk.Sources, model.GroundingSource{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return chunk, nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

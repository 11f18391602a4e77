package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Turn roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one prior message of a conversation.
type Turn struct {
	Role string
	Text string
}

// Request is a single generation call.
type Request struct {
	System  string
	History []Turn
	Prompt  string
	// JSON asks the model for an application/json response.
	JSON        bool
	Temperature *float32
}

// Model generates text. Stream calls onText for every delta and returns the
// concatenated text; an error from onText stops the stream.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request, onText func(string) error) (string, error)
}

var ErrEmptyResponse = errors.New("empty response from model")

// Gemini implements Model on the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, model string, temperature float32) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, temperature: temperature}, nil
}

// Client exposes the underlying client so the embedder can share it.
func (g *Gemini) Client() *genai.Client {
	return g.client
}

func (g *Gemini) config(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func contents(req Request) []*genai.Content {
	var out []*genai.Content
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Text, genai.Role(role)))
	}
	return append(out, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents(req), g.config(req))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) Stream(ctx context.Context, req Request, onText func(string) error) (string, error) {
	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents(req), g.config(req)) {
		if err != nil {
			return full.String(), fmt.Errorf("stream content: %w", err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onText(delta); err != nil {
			return full.String(), err
		}
	}
	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

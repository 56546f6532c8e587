// Package gemini backs the oracle with Google's Gemini models via the genai
// SDK. Responses are requested as JSON and parsed with the shared decoders.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"avatarsim.ai/internal/oracle"
)

const DefaultModel = "gemini-2.0-flash"

const systemInstruction = "You are the mind of an avatar in a small 2D simulation. Always answer with a single JSON object and nothing else."

var ErrNoCredential = errors.New("gemini: no API key configured")

type Config struct {
	Model string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Backend keeps one genai client per credential.
type Backend struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func New(cfg Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Backend{cfg: cfg, clients: map[string]*genai.Client{}}
}

func (b *Backend) client(ctx context.Context, key string) (*genai.Client, error) {
	if key == "" {
		return nil, ErrNoCredential
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[key]; ok {
		return c, nil
	}
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if b.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: b.cfg.BaseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	b.clients[key] = c
	return c, nil
}

func (b *Backend) model(m string) string {
	if m == "" {
		return b.cfg.Model
	}
	return m
}

func (b *Backend) generate(ctx context.Context, key, model, prompt string) (string, error) {
	c, err := b.client(ctx, key)
	if err != nil {
		return "", err
	}
	resp, err := c.Models.GenerateContent(ctx, b.model(model), genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func (b *Backend) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	text, err := b.generate(ctx, req.Credential, req.Model, oracle.DecisionPrompt(req))
	if err != nil {
		return oracle.Decision{}, err
	}
	return oracle.ParseDecision([]byte(text))
}

func (b *Backend) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	text, err := b.generate(ctx, req.Credential, req.Model, oracle.InteractionPrompt(req))
	if err != nil {
		return oracle.InteractionResult{}, err
	}
	return oracle.ParseInteraction([]byte(text))
}

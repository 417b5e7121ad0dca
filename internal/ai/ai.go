package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matheuskafuri/autoposter/internal/config"
)

// ErrMalformed marks a model response that could not be turned into a draft.
var ErrMalformed = errors.New("malformed model response")

// Candidate is the view of a feed item sent to the model.
type Candidate struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
	Score       int    `json:"score,omitempty"`
	Community   string `json:"subreddit,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Request describes what to draft for one target.
type Request struct {
	Category   string
	Account    string
	Kind       config.Kind
	Candidates []Candidate
	Options    []string
}

// Draft is a generated post. Thread is set for option categories and holds
// every post of the thread in order, Text being the first. SourceURL is the
// link a news or product post points to; it is not part of Text. Items lists
// the candidate links a digest mentions.
type Draft struct {
	Text      string
	SourceURL string
	Option    string
	Thread    []string
	Items     []string
}

// Generator drafts posts.
type Generator interface {
	Generate(ctx context.Context, req Request) (Draft, error)
}

// completer sends one system+user prompt and returns the raw text answer.
type completer interface {
	complete(ctx context.Context, p prompt) (string, error)
}

type generator struct {
	c completer
}

// New creates a Generator from the given AI config.
func New(cfg *config.AIConfig, apiKey string) (Generator, error) {
	if cfg == nil || apiKey == "" {
		return nil, fmt.Errorf("AI not configured")
	}

	client := &http.Client{Timeout: 60 * time.Second}

	switch cfg.Provider {
	case "claude":
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return &generator{c: &claudeProvider{apiKey: apiKey, model: model, client: client, endpoint: claudeEndpoint}}, nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return &generator{c: &openaiProvider{apiKey: apiKey, model: model, client: client, endpoint: openaiEndpoint}}, nil
	case "gemini":
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		g, err := newGeminiProvider(context.Background(), apiKey, model, "")
		if err != nil {
			return nil, err
		}
		return &generator{c: g}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %q (valid: claude, openai, gemini)", cfg.Provider)
	}
}

func (g *generator) Generate(ctx context.Context, req Request) (Draft, error) {
	p, err := buildPrompt(req)
	if err != nil {
		return Draft{}, err
	}
	text, err := g.c.complete(ctx, p)
	if err != nil {
		return Draft{}, err
	}
	return parseDraft(req, text)
}

// --- Claude provider ---

const claudeEndpoint = "https://api.anthropic.com/v1/messages"

type claudeProvider struct {
	apiKey   string
	model    string
	client   *http.Client
	endpoint string
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *claudeProvider) complete(ctx context.Context, p prompt) (string, error) {
	body, _ := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   1024,
		System:      p.system,
		Temperature: p.temperature,
		Messages:    []claudeMessage{{Role: "user", Content: p.user}},
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("claude API %d: %s", resp.StatusCode, string(b))
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Content) == 0 {
		return "", fmt.Errorf("empty claude response")
	}
	return cr.Content[0].Text, nil
}

// --- OpenAI provider ---

const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

type openaiProvider struct {
	apiKey   string
	model    string
	client   *http.Client
	endpoint string
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openaiProvider) complete(ctx context.Context, p prompt) (string, error) {
	body, _ := json.Marshal(openaiRequest{
		Model: o.model,
		Messages: []openaiMessage{
			{Role: "system", Content: p.system},
			{Role: "user", Content: p.user},
		},
		Temperature:    p.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})

	req, err := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("openai API %d: %s", resp.StatusCode, string(b))
	}

	var or openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", err
	}
	if len(or.Choices) == 0 {
		return "", fmt.Errorf("empty openai response")
	}
	return or.Choices[0].Message.Content, nil
}

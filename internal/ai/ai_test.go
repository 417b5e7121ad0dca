package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matheuskafuri/autoposter/internal/config"
)

func TestParseNewsDraft(t *testing.T) {
	req := Request{Kind: config.KindNews}
	input := "```json\n{\"tweet\": \"Rust 2.0 is out\", \"source_url\": \"https://blog.example/rust\", \"headline\": \"Rust\"}\n```"

	d, err := parseDraft(req, input)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.SourceURL != "https://blog.example/rust" {
		t.Errorf("unexpected source url %q", d.SourceURL)
	}
	if d.Text != "Rust 2.0 is out" {
		t.Errorf("link belongs in SourceURL, got text %q", d.Text)
	}
}

func TestParseNewsDraftAcceptsTextField(t *testing.T) {
	req := Request{Kind: config.KindNews}
	d, err := parseDraft(req, `{"text": "Read https://a.example/x now", "source_url": "https://a.example/x"}`)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.Text != "Read https://a.example/x now" {
		t.Errorf("unexpected text %q", d.Text)
	}
}

func TestParseNewsDraftMissingSource(t *testing.T) {
	_, err := parseDraft(Request{Kind: config.KindNews}, `{"tweet": "no link here"}`)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"", "I cannot help with that", `{"tweet": `, "}{"} {
		_, err := parseDraft(Request{Kind: config.KindDigest}, input)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestParseDigestDraftCoversCandidates(t *testing.T) {
	req := Request{
		Kind: config.KindDigest,
		Candidates: []Candidate{
			{Title: "A", Link: "https://tinyurl.com/a"},
			{Title: "B", Link: "https://tinyurl.com/b"},
		},
	}
	d, err := parseDraft(req, `{"tweet": "Trending today\nr/go https://tinyurl.com/b", "summary": "one thread"}`)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if !strings.HasPrefix(d.Text, "Trending today") {
		t.Errorf("unexpected text %q", d.Text)
	}
	if len(d.Items) != 1 || d.Items[0] != "https://tinyurl.com/b" {
		t.Errorf("expected only the mentioned link, got %v", d.Items)
	}

	d, err = parseDraft(req, `{"tweet": "Trending today"}`)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if len(d.Items) != 0 {
		t.Errorf("expected no items for a draft without links, got %v", d.Items)
	}
}

func TestParseProductDraftCarriesLink(t *testing.T) {
	req := Request{
		Kind:       config.KindProduct,
		Candidates: []Candidate{{Title: "Widget", Link: "https://tinyurl.com/w", Category: "ai"}},
	}
	d, err := parseDraft(req, `{"tweet": "Meet Widget", "summary": "x"}`)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.Text != "Meet Widget" {
		t.Errorf("unexpected text %q", d.Text)
	}
	if d.SourceURL != "https://tinyurl.com/w" {
		t.Errorf("unexpected source url %q", d.SourceURL)
	}
}

func TestParseBooksThread(t *testing.T) {
	req := Request{
		Category: "books",
		Kind:     config.KindOptions,
		Options:  []string{"Atomic Habits", "Deep Work"},
	}
	input := `{"book_title": "deep work", "author": "Cal Newport", "summary": "Focus is rare.",
		"takeaways": ["Schedule depth", "", "Embrace boredom"]}`

	d, err := parseDraft(req, input)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.Option != "Deep Work" {
		t.Errorf("expected canonical option, got %q", d.Option)
	}
	want := []string{
		"📚 deep work by Cal Newport\n\nFocus is rare.",
		"1. Schedule depth",
		"2. Embrace boredom",
	}
	if len(d.Thread) != len(want) {
		t.Fatalf("expected %d posts, got %d: %q", len(want), len(d.Thread), d.Thread)
	}
	for i := range want {
		if d.Thread[i] != want[i] {
			t.Errorf("post %d: got %q, want %q", i, d.Thread[i], want[i])
		}
	}
	if d.Text != d.Thread[0] {
		t.Error("text should be the first thread post")
	}
}

func TestParseQuotesThread(t *testing.T) {
	req := Request{
		Category: "quotes",
		Kind:     config.KindOptions,
		Options:  []string{"Courage", "Time"},
	}
	input := `{"topic": "Time", "quotes": [
		{"quote": "Lost time is never found again.", "author": "Benjamin Franklin", "year": 1748},
		{"quote": "Time is money.", "author": "Benjamin Franklin", "year": "1748"},
		{"quote": "Undated", "author": "Anon"}
	]}`

	d, err := parseDraft(req, input)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.Thread[0] != "💭 Most important quotes on Time" {
		t.Errorf("unexpected header %q", d.Thread[0])
	}
	if d.Thread[1] != `1. "Lost time is never found again." - Benjamin Franklin, 1748` {
		t.Errorf("unexpected first quote %q", d.Thread[1])
	}
	if d.Thread[2] != `2. "Time is money." - Benjamin Franklin, 1748` {
		t.Errorf("unexpected second quote %q", d.Thread[2])
	}
	if d.Thread[3] != `3. "Undated" - Anon` {
		t.Errorf("unexpected third quote %q", d.Thread[3])
	}
}

func TestParseThreadRejectsUnofferedOption(t *testing.T) {
	req := Request{
		Category: "quotes",
		Kind:     config.KindOptions,
		Options:  []string{"Courage"},
	}
	_, err := parseDraft(req, `{"topic": "Love", "quotes": [{"quote": "q", "author": "a"}]}`)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseGenericThread(t *testing.T) {
	req := Request{Category: "stoicism", Kind: config.KindOptions, Options: []string{"Virtue"}}
	d, err := parseDraft(req, `{"option": "Virtue", "posts": ["first", " ", "second"]}`)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if len(d.Thread) != 2 || d.Thread[1] != "second" {
		t.Errorf("unexpected thread %q", d.Thread)
	}
}

func TestBuildPromptNewsCapsCandidates(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 12; i++ {
		cands = append(cands, Candidate{Title: fmt.Sprintf("Item %d", i), Link: fmt.Sprintf("https://x.example/%d", i)})
	}
	p, err := buildPrompt(Request{Category: "technews", Account: "TechNews", Kind: config.KindNews, Candidates: cands})
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if !strings.Contains(p.user, "Item 7") || strings.Contains(p.user, "Item 8") {
		t.Error("expected exactly the first 8 candidates in the prompt")
	}
	if p.temperature != 0.6 {
		t.Errorf("expected news temperature 0.6, got %v", p.temperature)
	}
	if !strings.Contains(p.system, "TechNews") {
		t.Error("expected account name in system prompt")
	}
}

func TestBuildPromptProductOmitsLink(t *testing.T) {
	p, err := buildPrompt(Request{
		Kind:       config.KindProduct,
		Candidates: []Candidate{{Title: "Widget", Link: "https://secret.example/w", Category: "design"}},
	})
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if strings.Contains(p.user, "secret.example") {
		t.Error("product link should not be sent to the model")
	}
}

func TestBuildPromptErrors(t *testing.T) {
	cases := []Request{
		{Kind: config.KindNews},
		{Kind: config.KindOptions},
		{Kind: "poll", Options: []string{"a"}},
	}
	for _, req := range cases {
		if _, err := buildPrompt(req); err == nil {
			t.Errorf("expected error for %+v", req)
		}
	}
}

func TestOptionStyle(t *testing.T) {
	tests := map[string]string{
		"books":       "books",
		"BookClub":    "books",
		"quotes":      "quotes",
		"dailyQuotes": "quotes",
		"stoicism":    "generic",
	}
	for in, want := range tests {
		if got := optionStyle(in); got != want {
			t.Errorf("optionStyle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(&config.AIConfig{Provider: "llama"}, "key"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(nil, "key"); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&config.AIConfig{Provider: "openai"}, ""); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		content := `{"tweet": "Big news", "source_url": "https://x.example/1"}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	defer srv.Close()

	g := &generator{c: &openaiProvider{apiKey: "test-key", model: "gpt-4o-mini", client: srv.Client(), endpoint: srv.URL}}
	d, err := g.Generate(context.Background(), Request{
		Category:   "technews",
		Kind:       config.KindNews,
		Candidates: []Candidate{{Title: "Big", Link: "https://x.example/1"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.SourceURL != "https://x.example/1" {
		t.Errorf("unexpected draft %+v", d)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("expected system and user messages, got %+v", got.Messages)
	}
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "quota"}`)
	}))
	defer srv.Close()

	p := &openaiProvider{apiKey: "k", model: "m", client: srv.Client(), endpoint: srv.URL}
	_, err := p.complete(context.Background(), prompt{system: "s", user: "u"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestClaudeProviderSendsSystemPrompt(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "{\"tweet\": \"hi\"}"}]}`)
	}))
	defer srv.Close()

	p := &claudeProvider{apiKey: "test-key", model: "claude", client: srv.Client(), endpoint: srv.URL}
	text, err := p.complete(context.Background(), prompt{system: "be brief", user: "draft", temperature: 0.7})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != `{"tweet": "hi"}` {
		t.Errorf("unexpected text %q", text)
	}
	if got.System != "be brief" || got.Messages[0].Content != "draft" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestClaudeProviderEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": []}`)
	}))
	defer srv.Close()

	p := &claudeProvider{apiKey: "k", model: "m", client: srv.Client(), endpoint: srv.URL}
	if _, err := p.complete(context.Background(), prompt{}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestGeminiProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"tweet\": \"Trending\"}"}]}}]}`)
	}))
	defer srv.Close()

	p, err := newGeminiProvider(context.Background(), "test-key", "gemini-2.5-flash", srv.URL)
	if err != nil {
		t.Fatalf("newGeminiProvider: %v", err)
	}
	g := &generator{c: p}
	d, err := g.Generate(context.Background(), Request{
		Kind:       config.KindDigest,
		Candidates: []Candidate{{Title: "A", Link: "https://tinyurl.com/a"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.Text != "Trending" {
		t.Errorf("unexpected text %q", d.Text)
	}
}

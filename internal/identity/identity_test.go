package identity

import (
	"strings"
	"testing"
)

func TestArticle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://example.com/a/b", "example.com/a/b"},
		{"https://Example.COM/a/b?utm_source=x#top", "example.com/a/b"},
		{"https://example.com:443/a/./b", "example.com/a/b"},
		{"http://example.com", "example.com"},
		{"", ""},
		{"not-a-url", ""},
	}
	for _, tt := range tests {
		if got := Article(tt.input); got != tt.want {
			t.Errorf("Article(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestArticleCollapsesVariants(t *testing.T) {
	a := Article("https://news.example/story?ref=rss")
	b := Article("https://NEWS.example/story#comments")
	if a != b {
		t.Errorf("expected variants to collapse, got %q and %q", a, b)
	}
}

func TestSubreddit(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.reddit.com/r/technology/comments/abc/title/", "technology"},
		{"https://www.reddit.com/r/science", "science"},
		{"https://example.com/post", "unknown"},
		{"https://www.reddit.com/r/", "unknown"},
	}
	for _, tt := range tests {
		if got := Subreddit(tt.input); got != tt.want {
			t.Errorf("Subreddit(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPostTruncatesTitle(t *testing.T) {
	title := strings.Repeat("a", 80)
	got := Post("news", title)
	if got != "news:"+strings.Repeat("a", 50) {
		t.Errorf("unexpected identifier %q", got)
	}
}

func TestProductTruncatesByRune(t *testing.T) {
	name := strings.Repeat("é", 60)
	got := Product("ai", name)
	if got != "ai:"+strings.Repeat("é", 50) {
		t.Errorf("unexpected identifier %q", got)
	}
	if got := Product("design", "Short"); got != "design:Short" {
		t.Errorf("unexpected identifier %q", got)
	}
}

package shorten

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheuskafuri/autoposter/internal/logging"
)

func TestTinyURLShortens(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		fmt.Fprint(w, "https://tinyurl.com/abc123\n")
	}))
	defer srv.Close()

	s := NewTinyURL(srv.URL, time.Second, logging.Discard())
	got := s.Shorten(context.Background(), "https://www.reddit.com/r/science/comments/x?a=1&b=2")
	if got != "https://tinyurl.com/abc123" {
		t.Errorf("unexpected short url %q", got)
	}
	if gotURL != "https://www.reddit.com/r/science/comments/x?a=1&b=2" {
		t.Errorf("long url not passed intact, got %q", gotURL)
	}
}

func TestTinyURLFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTinyURL(srv.URL, time.Second, logging.Discard())
	long := "https://example.com/long"
	if got := s.Shorten(context.Background(), long); got != long {
		t.Errorf("expected fallback to original, got %q", got)
	}
}

func TestTinyURLRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Error")
	}))
	defer srv.Close()

	s := NewTinyURL(srv.URL, time.Second, logging.Discard())
	long := "https://example.com/long"
	if got := s.Shorten(context.Background(), long); got != long {
		t.Errorf("expected fallback to original, got %q", got)
	}
}

func TestAll(t *testing.T) {
	got := All(context.Background(), Identity{}, []string{"https://a", "https://b"})
	if len(got) != 2 || got["https://a"] != "https://a" {
		t.Errorf("unexpected map %v", got)
	}
}

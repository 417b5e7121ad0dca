// Package shorten turns long links into short ones through a TinyURL-style
// endpoint. Failures fall back to the original link.
package shorten

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the TinyURL creation API.
const DefaultEndpoint = "http://tinyurl.com/api-create.php"

type Shortener interface {
	Shorten(ctx context.Context, long string) string
}

// TinyURL shortens links with a GET to endpoint?url=<long>.
type TinyURL struct {
	endpoint string
	client   *http.Client
	log      logrus.FieldLogger
}

func NewTinyURL(endpoint string, timeout time.Duration, log logrus.FieldLogger) *TinyURL {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return &TinyURL{endpoint: endpoint, client: rc.StandardClient(), log: log}
}

// Shorten returns the short link, or long itself when shortening fails.
func (t *TinyURL) Shorten(ctx context.Context, long string) string {
	short, err := t.shorten(ctx, long)
	if err != nil {
		t.log.WithField("url", long).Warnf("shortening failed, using original: %v", err)
		return long
	}
	return short
}

func (t *TinyURL) shorten(ctx context.Context, long string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?url="+url.QueryEscape(long), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shortener returned %d", resp.StatusCode)
	}
	short := strings.TrimSpace(string(body))
	if !strings.HasPrefix(short, "http") {
		return "", fmt.Errorf("unexpected shortener response %q", short)
	}
	return short, nil
}

// All shortens every link, returning a map from original to short form.
func All(ctx context.Context, s Shortener, links []string) map[string]string {
	out := make(map[string]string, len(links))
	for _, l := range links {
		out[l] = s.Shorten(ctx, l)
	}
	return out
}

// Identity returns links unchanged. Used when shortening is disabled.
type Identity struct{}

func (Identity) Shorten(_ context.Context, long string) string { return long }

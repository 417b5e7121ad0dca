// Package publish delivers posts and threads to a destination account.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rivo/uniseg"
	"github.com/sirupsen/logrus"
)

// MaxGraphemes is the post length limit of the destination platform.
const MaxGraphemes = 300

// ErrRateLimited marks an error as a rate-limit rejection.
var ErrRateLimited = errors.New("rate limited")

// IsRateLimited reports whether err is a rate-limit rejection, either an
// XRPC 429 or an error wrapping ErrRateLimited.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var xe *xrpc.Error
	return errors.As(err, &xe) && xe.IsThrottled()
}

// Receipt identifies a published post.
type Receipt struct {
	URI      string
	CID      string
	Text     string
	PostedAt time.Time
}

// Reply points a post at the thread root and its direct parent.
type Reply struct {
	Root   Receipt
	Parent Receipt
}

// Poster sends a single post. Implementations do not retry.
type Poster interface {
	Post(ctx context.Context, account, text string, reply *Reply) (Receipt, error)
}

type Publisher interface {
	PublishSingle(ctx context.Context, account, text string) (Receipt, error)
	PublishThread(ctx context.Context, account string, texts []string) ([]Receipt, error)
}

// RetryPolicy retries rate-limited posts after a fixed cooldown. Other
// errors are not retried.
type RetryPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Cooldown: 120 * time.Second}
}

func (p RetryPolicy) build(log logrus.FieldLogger) retrypolicy.RetryPolicy[Receipt] {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return retrypolicy.NewBuilder[Receipt]().
		HandleIf(func(_ Receipt, err error) bool {
			return IsRateLimited(err)
		}).
		WithMaxAttempts(attempts).
		WithDelay(p.Cooldown).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[Receipt]) {
			log.Warnf("rate limited, retrying after %s (attempt %d/%d)", p.Cooldown, e.Attempts()+1, attempts)
		}).
		Build()
}

// Options configures a Client.
type Options struct {
	Retry          RetryPolicy
	InterPostDelay time.Duration

	// Sleep waits between thread posts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client wraps a Poster with the retry policy and thread sequencing.
type Client struct {
	poster    Poster
	policy    retrypolicy.RetryPolicy[Receipt]
	interPost time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	log       logrus.FieldLogger
}

func NewClient(p Poster, opts Options, log logrus.FieldLogger) *Client {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Client{
		poster:    p,
		policy:    opts.Retry.build(log),
		interPost: opts.InterPostDelay,
		sleep:     sleep,
		log:       log,
	}
}

func (c *Client) PublishSingle(ctx context.Context, account, text string) (Receipt, error) {
	r, err := c.post(ctx, account, text, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("publishing to %s: %w", account, err)
	}
	c.log.WithField("account", account).Infof("posted %s", r.URI)
	return r, nil
}

// PublishThread posts texts in order, each replying to the previous one.
// A post that still fails after the retry policy aborts the remainder; the
// receipts of posts already made are returned with the error.
func (c *Client) PublishThread(ctx context.Context, account string, texts []string) ([]Receipt, error) {
	if len(texts) == 0 {
		return nil, errors.New("empty thread")
	}
	log := c.log.WithField("account", account)

	receipts := make([]Receipt, 0, len(texts))
	var reply *Reply
	for i, text := range texts {
		if i > 0 {
			if err := c.sleep(ctx, c.interPost); err != nil {
				return receipts, err
			}
		}
		r, err := c.post(ctx, account, text, reply)
		if err != nil {
			log.Errorf("thread aborted at post %d/%d: %v", i+1, len(texts), err)
			return receipts, fmt.Errorf("thread post %d/%d to %s: %w", i+1, len(texts), account, err)
		}
		log.Infof("thread post %d/%d: %s", i+1, len(texts), r.URI)
		receipts = append(receipts, r)
		if reply == nil {
			reply = &Reply{Root: r}
		}
		reply.Parent = r
	}
	return receipts, nil
}

func (c *Client) post(ctx context.Context, account, text string, reply *Reply) (Receipt, error) {
	return failsafe.With(c.policy).WithContext(ctx).Get(func() (Receipt, error) {
		return c.poster.Post(ctx, account, text, reply)
	})
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fit shortens text to at most limit grapheme clusters, ending with an
// ellipsis when anything was cut.
func Fit(text string, limit int) string {
	if limit <= 0 || uniseg.GraphemeClusterCount(text) <= limit {
		return text
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for n := 0; n < limit-1 && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return strings.TrimRight(b.String(), " \n") + "…"
}

// WithLink fits text to limit while keeping link whole. A link already in
// text stays in place when everything fits; otherwise the text is shortened
// and the link is appended after it.
func WithLink(text, link string, limit int) string {
	if link == "" {
		return Fit(text, limit)
	}
	if strings.Contains(text, link) {
		if limit <= 0 || uniseg.GraphemeClusterCount(text) <= limit {
			return text
		}
		text = strings.TrimSpace(strings.Replace(text, link, "", 1))
	}
	suffix := "\n\nLearn more: " + link
	if limit <= 0 {
		return text + suffix
	}
	room := limit - uniseg.GraphemeClusterCount(suffix)
	if room < 1 {
		return Fit(text+suffix, limit)
	}
	return Fit(text, room) + suffix
}

// FitLines fits text to limit by dropping whole lines from the end, so
// links on the remaining lines survive. Text whose first line alone is too
// long falls back to Fit.
func FitLines(text string, limit int) string {
	if limit <= 0 || uniseg.GraphemeClusterCount(text) <= limit {
		return text
	}
	lines := strings.Split(text, "\n")
	for n := len(lines) - 1; n > 0; n-- {
		cut := strings.TrimRight(strings.Join(lines[:n], "\n"), " \n")
		if cut != "" && uniseg.GraphemeClusterCount(cut) <= limit {
			return cut
		}
	}
	return Fit(text, limit)
}

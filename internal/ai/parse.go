package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matheuskafuri/autoposter/internal/config"
)

type postResponse struct {
	Tweet     string `json:"tweet"`
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	Headline  string `json:"headline"`
	Summary   string `json:"summary"`
}

func (r postResponse) body() string {
	if t := strings.TrimSpace(r.Tweet); t != "" {
		return t
	}
	return strings.TrimSpace(r.Text)
}

type bookResponse struct {
	Option    string   `json:"option"`
	BookTitle string   `json:"book_title"`
	Author    string   `json:"author"`
	Summary   string   `json:"summary"`
	Takeaways []string `json:"takeaways"`
}

type quote struct {
	Quote  string          `json:"quote"`
	Author string          `json:"author"`
	Year   json.RawMessage `json:"year"`
}

type quotesResponse struct {
	Topic  string  `json:"topic"`
	Quotes []quote `json:"quotes"`
}

type threadResponse struct {
	Option string   `json:"option"`
	Posts  []string `json:"posts"`
}

func parseDraft(req Request, raw string) (Draft, error) {
	data := extractJSON(raw)
	if data == "" {
		return Draft{}, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	switch req.Kind {
	case config.KindNews:
		var r postResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		text, src := r.body(), strings.TrimSpace(r.SourceURL)
		if text == "" || src == "" {
			return Draft{}, fmt.Errorf("%w: news draft needs tweet and source_url", ErrMalformed)
		}
		return Draft{Text: text, SourceURL: src}, nil

	case config.KindDigest:
		var r postResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if r.body() == "" {
			return Draft{}, fmt.Errorf("%w: empty tweet", ErrMalformed)
		}
		var items []string
		for _, c := range req.Candidates {
			if c.Link != "" && strings.Contains(r.body(), c.Link) {
				items = append(items, c.Link)
			}
		}
		return Draft{Text: r.body(), Items: items}, nil

	case config.KindProduct:
		var r postResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if r.body() == "" || len(req.Candidates) == 0 {
			return Draft{}, fmt.Errorf("%w: empty tweet", ErrMalformed)
		}
		link := req.Candidates[0].Link
		return Draft{Text: r.body(), SourceURL: link}, nil

	case config.KindOptions:
		return parseThread(req, data)
	}
	return Draft{}, fmt.Errorf("unknown target kind %q", req.Kind)
}

func parseThread(req Request, data string) (Draft, error) {
	var (
		chosen string
		posts  []string
	)

	switch optionStyle(req.Category) {
	case "books":
		var r bookResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		chosen = r.Option
		if chosen == "" {
			chosen = r.BookTitle
		}
		if strings.TrimSpace(r.Summary) == "" {
			return Draft{}, fmt.Errorf("%w: book summary missing", ErrMalformed)
		}
		head := "📚 " + strings.TrimSpace(chosen)
		if r.Author != "" {
			head += " by " + strings.TrimSpace(r.Author)
		}
		posts = append(posts, head+"\n\n"+strings.TrimSpace(r.Summary))
		posts = append(posts, numbered(r.Takeaways)...)

	case "quotes":
		var r quotesResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		chosen = r.Topic
		if len(r.Quotes) == 0 {
			return Draft{}, fmt.Errorf("%w: no quotes", ErrMalformed)
		}
		posts = append(posts, "💭 Most important quotes on "+strings.TrimSpace(chosen))
		for _, q := range r.Quotes {
			if strings.TrimSpace(q.Quote) == "" {
				continue
			}
			line := fmt.Sprintf("%d. \"%s\" - %s", len(posts), strings.TrimSpace(q.Quote), strings.TrimSpace(q.Author))
			if y := yearString(q.Year); y != "" {
				line += ", " + y
			}
			posts = append(posts, line)
		}

	default:
		var r threadResponse
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		chosen = r.Option
		for _, p := range r.Posts {
			if p = strings.TrimSpace(p); p != "" {
				posts = append(posts, p)
			}
		}
	}

	option, ok := matchOption(chosen, req.Options)
	if !ok {
		return Draft{}, fmt.Errorf("%w: option %q is not one of the offered options", ErrMalformed, chosen)
	}
	if len(posts) == 0 {
		return Draft{}, fmt.Errorf("%w: empty thread", ErrMalformed)
	}
	return Draft{Text: posts[0], Option: option, Thread: posts}, nil
}

func numbered(items []string) []string {
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%d. %s", len(out)+1, it))
	}
	return out
}

// yearString accepts both "1951" and 1951.
func yearString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// matchOption returns the offered option equal to chosen, ignoring case and
// surrounding whitespace.
func matchOption(chosen string, options []string) (string, bool) {
	chosen = strings.TrimSpace(chosen)
	if chosen == "" {
		return "", false
	}
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), chosen) {
			return o, true
		}
	}
	return "", false
}

// extractJSON returns the outermost JSON object in s, tolerating code fences
// and surrounding prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

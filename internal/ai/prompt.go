package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matheuskafuri/autoposter/internal/config"
)

// maxNewsCandidates is how many ranked items the model sees for news drafts.
const maxNewsCandidates = 8

type prompt struct {
	system      string
	user        string
	temperature float64
}

const systemPrompt = `You write short posts for a themed social media account called %s.
Posts must stay under 280 characters unless stated otherwise, use plain text, at most two hashtags and no markdown.
Always answer with a single JSON object and nothing else.`

const newsPrompt = `Pick the single most newsworthy item from these %s candidates and write a post about it. Do not include the link in the post, it is appended automatically.

Candidates (JSON):
%s

Respond with JSON: {"tweet": "<post text>", "source_url": "<link of the chosen item, copied exactly>", "headline": "<its title>", "reason": "<why it was chosen>"}`

const digestPrompt = `Write one post summarising these %d trending discussions. Start with a short intro line, then put each discussion on its own line with its community and its link exactly as given.

Discussions (JSON):
%s

Respond with JSON: {"tweet": "<post text>", "summary": "<one line overview>"}`

const productPrompt = `Write a post introducing this %s product. Say what it does and who it is for. Do not include the link, it is appended automatically.

Product (JSON):
%s

Respond with JSON: {"tweet": "<post text>", "summary": "<one line overview>"}`

const booksPrompt = `Choose ONE book from this list and summarise it for a thread. Copy the chosen title exactly as listed.

Books:
%s

Respond with JSON: {"option": "<chosen title>", "author": "<author>", "summary": "<two sentence summary>", "takeaways": ["<five>", "<short>", "<key>", "<takeaways>", "<each under 250 characters>"]}`

const quotesPrompt = `Choose ONE topic from this list and collect the most important real quotes about it. Copy the chosen topic exactly as listed.

Topics:
%s

Respond with JSON: {"topic": "<chosen topic>", "quotes": [{"quote": "<text>", "author": "<who>", "year": "<when>"}]} with five quotes, each under 220 characters.`

const optionsPrompt = `Choose ONE subject from this list and write a short thread about it. Copy the chosen subject exactly as listed.

Subjects:
%s

Respond with JSON: {"option": "<chosen subject>", "posts": ["<first post>", "<second post>", "..."]} with three to six posts.`

func buildPrompt(req Request) (prompt, error) {
	p := prompt{
		system:      fmt.Sprintf(systemPrompt, req.Account),
		temperature: 0.7,
	}

	switch req.Kind {
	case config.KindNews:
		if len(req.Candidates) == 0 {
			return prompt{}, fmt.Errorf("no candidates to draft from")
		}
		cands := req.Candidates
		if len(cands) > maxNewsCandidates {
			cands = cands[:maxNewsCandidates]
		}
		p.user = fmt.Sprintf(newsPrompt, req.Category, toJSON(cands))
		p.temperature = 0.6
	case config.KindDigest:
		if len(req.Candidates) == 0 {
			return prompt{}, fmt.Errorf("no candidates to draft from")
		}
		p.user = fmt.Sprintf(digestPrompt, len(req.Candidates), toJSON(req.Candidates))
	case config.KindProduct:
		if len(req.Candidates) == 0 {
			return prompt{}, fmt.Errorf("no product to draft from")
		}
		c := req.Candidates[0]
		c.Link = ""
		p.user = fmt.Sprintf(productPrompt, c.Category, toJSON(c))
	case config.KindOptions:
		if len(req.Options) == 0 {
			return prompt{}, fmt.Errorf("no options to choose from")
		}
		list := bulletList(req.Options)
		switch optionStyle(req.Category) {
		case "books":
			p.user = fmt.Sprintf(booksPrompt, list)
		case "quotes":
			p.user = fmt.Sprintf(quotesPrompt, list)
		default:
			p.user = fmt.Sprintf(optionsPrompt, list)
		}
	default:
		return prompt{}, fmt.Errorf("unknown target kind %q", req.Kind)
	}
	return p, nil
}

// optionStyle picks the thread layout for an option category.
func optionStyle(category string) string {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "book"):
		return "books"
	case strings.Contains(c, "quote"):
		return "quotes"
	default:
		return "generic"
	}
}

func toJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func bulletList(items []string) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return sb.String()
}

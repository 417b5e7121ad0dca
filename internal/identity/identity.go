// Package identity derives the stable identifiers stored in usage memory.
package identity

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const nameLimit = 50

// Article returns host+path of a source URL with query and fragment removed.
// It returns "" when the URL has no host.
func Article(sourceURL string) string {
	raw := strings.TrimSpace(sourceURL)
	if raw == "" {
		return ""
	}
	normalized, err := purell.NormalizeURLString(raw,
		purell.FlagLowercaseHost|purell.FlagRemoveDefaultPort|purell.FlagRemoveFragment|purell.FlagRemoveDotSegments)
	if err != nil {
		normalized = raw
	}
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host + u.Path
}

// Subreddit extracts the community name from a reddit-style link.
func Subreddit(link string) string {
	_, rest, ok := strings.Cut(link, "/r/")
	if !ok {
		return "unknown"
	}
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return "unknown"
	}
	return name
}

// Post returns "<community>:<title prefix>" for digest items.
func Post(community, title string) string {
	return community + ":" + prefix(title, nameLimit)
}

// Product returns "<product category>:<name prefix>".
func Product(category, name string) string {
	return category + ":" + prefix(name, nameLimit)
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Package browser opens published posts in the system web browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

const (
	webHost        = "https://bsky.app"
	postCollection = "app.bsky.feed.post"
)

// PostURL maps an at:// post URI to its bsky.app page.
func PostURL(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", fmt.Errorf("not an at:// uri: %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" || parts[1] != postCollection {
		return "", fmt.Errorf("not a post uri: %q", uri)
	}
	return webHost + "/profile/" + parts[0] + "/post/" + parts[2], nil
}

// OpenPost opens the page of the post identified by an at:// URI.
func OpenPost(uri string) error {
	u, err := PostURL(uri)
	if err != nil {
		return err
	}
	return open(u)
}

func open(rawURL string) error {
	if err := validate(rawURL); err != nil {
		return err
	}
	return command(rawURL).Start()
}

func validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open URL with scheme %q (only http/https allowed)", u.Scheme)
	}
	return nil
}

func command(rawURL string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", rawURL)
	case "windows":
		// rundll32 avoids shell interpretation of the URL
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		return exec.Command("xdg-open", rawURL)
	}
}

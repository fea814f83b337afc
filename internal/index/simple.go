package index

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
)

// ListProjectFiles fetches the project's simple-index page (PEP 503) and
// returns the filenames the index already serves. Used to skip uploads of
// files the index has. A 404 means the project has no releases yet.
func (c *Client) ListProjectFiles(ctx context.Context, project string) (map[string]bool, error) {
	if c.cfg.SimpleURL == "" {
		return nil, ferrors.ConfigError("index has no simple_url configured").
			WithContext("index", c.cfg.Name).
			Build()
	}

	pageURL, err := projectPageURL(c.cfg.SimpleURL, project)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build simple index request: %w", err)
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ferrors.NetworkError("simple index request failed").
			WithContext("index", c.cfg.Name).
			WithCause(err).
			Retryable().
			Build()
	}
	defer resp.Body.Close() // #nosec G307

	if resp.StatusCode == http.StatusNotFound {
		return map[string]bool{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ferrors.IndexError("simple index returned unexpected status").
			WithContext("index", c.cfg.Name).
			WithContext("url", pageURL).
			WithContext("status", resp.StatusCode).
			Build()
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, ferrors.IndexError("parse simple index page").
			WithContext("index", c.cfg.Name).
			WithCause(err).
			Build()
	}

	files := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if name := anchorFilename(n); name != "" {
				files[name] = true
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return files, nil
}

// projectPageURL joins the simple index root with the normalized project name.
func projectPageURL(simpleURL, project string) (string, error) {
	base, err := url.Parse(simpleURL)
	if err != nil {
		return "", ferrors.ConfigError("invalid simple_url").
			WithContext("url", simpleURL).
			WithCause(err).
			Build()
	}
	base.Path = path.Join(base.Path, artifact.NormalizeName(project)) + "/"
	return base.String(), nil
}

// anchorFilename extracts the served filename from an anchor: the link text
// per PEP 503, with the href basename as fallback.
func anchorFilename(n *html.Node) string {
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		if text := strings.TrimSpace(n.FirstChild.Data); text != "" {
			return text
		}
	}
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		href := attr.Val
		if i := strings.IndexAny(href, "#?"); i >= 0 {
			href = href[:i]
		}
		return path.Base(href)
	}
	return ""
}

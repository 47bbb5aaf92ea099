package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
)

type htmlSource struct {
	src ArticleSource
}

// WithHTMLBodies wraps src so that article bodies delivered as HTML are
// reduced to their readable text. Plain text bodies pass through unchanged.
func WithHTMLBodies(src ArticleSource) ArticleSource {
	return &htmlSource{src: src}
}

func (h *htmlSource) Next(ctx context.Context) (common.Article, error) {
	a, err := h.src.Next(ctx)
	if err != nil {
		return a, err
	}
	if !looksLikeHTML(a.Body) {
		return a, nil
	}

	text, err := RenderHTML(a.Body, a.URL)
	if err != nil {
		logger.Warn("[Source] Failed to render html body, keeping raw body", "article", a.ID, "err", err)
		return a, nil
	}
	a.Body = text
	return a, nil
}

// RenderHTML extracts the main readable text of an HTML document.
func RenderHTML(body string, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		u = &url.URL{Scheme: "https", Host: "localhost"}
	}

	article, err := readability.FromReader(strings.NewReader(body), u)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", err
	}
	return strings.TrimSpace(builder.String()), nil
}

func looksLikeHTML(body string) bool {
	s := strings.TrimSpace(body)
	if !strings.HasPrefix(s, "<") {
		return false
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "</") || strings.HasPrefix(lower, "<!doctype html")
}

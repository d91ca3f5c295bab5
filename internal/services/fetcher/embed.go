package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
)

// embedScraper pulls og: metadata from the platforms' public embed pages
// when the scrape API omits it. Best effort only; callers treat failures
// as missing metadata.
type embedScraper struct {
	httpClient *http.Client
	userAgent  string
	logger     arbor.ILogger
}

type embedPage struct {
	title   string
	caption string
	author  string
}

func newEmbedScraper(httpClient *http.Client, userAgent string, logger arbor.ILogger) *embedScraper {
	return &embedScraper{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

func (e *embedScraper) fetch(ctx context.Context, platform, rawURL string) (*embedPage, error) {
	embedURL, err := embedURLFor(platform, rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, embedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embed page: %w", err)
	}

	return parseEmbedDocument(doc), nil
}

// embedURLFor maps a post URL to the platform's oEmbed-style page.
func embedURLFor(platform, rawURL string) (string, error) {
	switch platform {
	case models.PlatformTikTok:
		return "https://www.tiktok.com/oembed?url=" + url.QueryEscape(rawURL), nil
	case models.PlatformInstagram:
		trimmed := strings.TrimRight(rawURL, "/")
		return trimmed + "/embed/captioned/", nil
	default:
		return "", fmt.Errorf("no embed page for platform %s", platform)
	}
}

// parseEmbedDocument extracts og: meta tags and visible caption text.
func parseEmbedDocument(doc *goquery.Document) *embedPage {
	page := &embedPage{}

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		property, _ := sel.Attr("property")
		content, _ := sel.Attr("content")
		if content == "" {
			return
		}
		switch property {
		case "og:title":
			page.title = strings.TrimSpace(content)
		case "og:description":
			page.caption = strings.TrimSpace(content)
		}
	})

	if page.title == "" {
		page.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if page.caption == "" {
		page.caption = strings.TrimSpace(doc.Find(".Caption, [data-testid='caption']").First().Text())
	}
	if author := strings.TrimSpace(doc.Find(".UsernameText, [data-testid='author']").First().Text()); author != "" {
		page.author = strings.TrimPrefix(author, "@")
	}

	return page
}

// Package fetcher implements the MediaFetcher capability against the
// remote scrape APIs that handle platform rendering and extraction.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/models"
	"golang.org/x/time/rate"
)

// maxMediaBytes caps a single media download (100 MB).
const maxMediaBytes = 100 * 1024 * 1024

// Service fetches media and metadata for supported post URLs. One rate
// limiter per platform keeps the scrape APIs within their quotas.
type Service struct {
	config     *common.ScraperConfig
	httpClient *http.Client
	limiters   map[string]*rate.Limiter
	embed      *embedScraper
	logger     arbor.ILogger
}

// scrapeResponse is the wire format returned by the scrape APIs.
type scrapeResponse struct {
	MediaURL    string   `json:"media_url"`
	IsSlideshow bool     `json:"is_slideshow"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	Title       string   `json:"title,omitempty"`
	Author      string   `json:"author,omitempty"`
	Caption     string   `json:"caption,omitempty"`
	Description string   `json:"description,omitempty"`
	Transcript  string   `json:"transcript,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// NewService creates a media fetcher from scraper configuration.
func NewService(config *common.ScraperConfig, logger arbor.ILogger) *Service {
	timeout := 60 * time.Second
	if d, err := time.ParseDuration(config.RequestTimeout); err == nil && d > 0 {
		timeout = d
	}

	perSecond := config.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 4
	}

	httpClient := &http.Client{Timeout: timeout}

	s := &Service{
		config:     config,
		httpClient: httpClient,
		limiters: map[string]*rate.Limiter{
			models.PlatformTikTok:    rate.NewLimiter(rate.Limit(perSecond), burst),
			models.PlatformInstagram: rate.NewLimiter(rate.Limit(perSecond), burst),
		},
		logger: logger,
	}
	if config.EmbedFallback {
		s.embed = newEmbedScraper(httpClient, config.UserAgent, logger)
	}
	return s
}

// DetectPlatform maps a post URL to its platform identifier. Returns a
// ValidationError for unparseable input and an UnsupportedPlatformError
// for hosts outside the supported set.
func DetectPlatform(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", models.ValidationError("invalid url: empty")
	}
	parseable := trimmed
	if !strings.Contains(parseable, "://") {
		parseable = "https://" + parseable
	}
	parsed, err := url.Parse(parseable)
	if err != nil || parsed.Host == "" {
		return "", models.ValidationError(fmt.Sprintf("malformed url: %s", trimmed))
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	switch {
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return models.PlatformTikTok, nil
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return models.PlatformInstagram, nil
	default:
		return "", models.UnsupportedPlatformError(host)
	}
}

// Fetch downloads the post's primary media and metadata.
func (s *Service) Fetch(ctx context.Context, rawURL string) ([]byte, *models.MediaMeta, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return nil, nil, err
	}

	scraped, err := s.scrape(ctx, platform, rawURL)
	if err != nil {
		return nil, nil, err
	}

	meta := s.buildMeta(ctx, platform, rawURL, scraped)

	if scraped.IsSlideshow {
		if len(scraped.ImageURLs) == 0 {
			return nil, nil, models.FetchError("slideshow has no images", nil)
		}
		first, err := s.download(ctx, scraped.ImageURLs[0])
		if err != nil {
			return nil, nil, err
		}
		return first, meta, nil
	}

	if scraped.MediaURL == "" {
		return nil, nil, models.FetchError("scrape response missing media url", nil)
	}
	media, err := s.download(ctx, scraped.MediaURL)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug().
		Str("platform", platform).
		Int("bytes", len(media)).
		Msg("Media downloaded")

	return media, meta, nil
}

// FetchSlideshow downloads every image of a multi-image post.
func (s *Service) FetchSlideshow(ctx context.Context, rawURL string) ([][]byte, *models.MediaMeta, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return nil, nil, err
	}

	scraped, err := s.scrape(ctx, platform, rawURL)
	if err != nil {
		return nil, nil, err
	}
	if len(scraped.ImageURLs) == 0 {
		return nil, nil, models.FetchError("slideshow has no images", nil)
	}

	meta := s.buildMeta(ctx, platform, rawURL, scraped)
	meta.IsSlideshow = true
	meta.ImageCount = len(scraped.ImageURLs)

	images := make([][]byte, 0, len(scraped.ImageURLs))
	for _, imageURL := range scraped.ImageURLs {
		data, err := s.download(ctx, imageURL)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, data)
	}
	return images, meta, nil
}

// scrape calls the platform's scrape API and decodes the response.
func (s *Service) scrape(ctx context.Context, platform, rawURL string) (*scrapeResponse, error) {
	endpoint := s.endpointFor(platform)
	if endpoint == "" {
		return nil, models.FetchError(fmt.Sprintf("no scrape endpoint configured for %s", platform), nil)
	}

	if err := s.limiters[platform].Wait(ctx); err != nil {
		return nil, models.FetchError("rate limit wait cancelled", err)
	}

	body, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return nil, models.FetchError("failed to encode scrape request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, models.FetchError("failed to build scrape request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.FetchError("scrape request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, models.FetchError("failed to read scrape response", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Remote error bodies carry the permanent-failure markers
		// (video not found, private video) the retry classifier keys on.
		var remote scrapeResponse
		if err := json.Unmarshal(data, &remote); err == nil && remote.Error != "" {
			return nil, models.FetchError(fmt.Sprintf("scrape api %d: %s", resp.StatusCode, remote.Error), nil)
		}
		return nil, models.FetchError(fmt.Sprintf("scrape api returned status %d", resp.StatusCode), nil)
	}

	// An undecodable body means the endpoint is misconfigured or the API
	// contract changed; retrying the same request cannot help.
	var scraped scrapeResponse
	if err := json.Unmarshal(data, &scraped); err != nil {
		return nil, models.FormatError("malformed scrape response", err)
	}
	if scraped.Error != "" {
		return nil, models.FetchError(scraped.Error, nil)
	}
	return &scraped, nil
}

// buildMeta assembles MediaMeta, filling gaps from the public embed page
// when the fallback is enabled.
func (s *Service) buildMeta(ctx context.Context, platform, rawURL string, scraped *scrapeResponse) *models.MediaMeta {
	meta := &models.MediaMeta{
		Platform:    platform,
		IsSlideshow: scraped.IsSlideshow,
		Title:       scraped.Title,
		Author:      scraped.Author,
		Caption:     scraped.Caption,
		Description: scraped.Description,
		Transcript:  scraped.Transcript,
		ImageCount:  len(scraped.ImageURLs),
		DurationSec: scraped.DurationSec,
	}

	if s.embed != nil && (meta.Title == "" || meta.Caption == "") {
		if page, err := s.embed.fetch(ctx, platform, rawURL); err == nil {
			if meta.Title == "" {
				meta.Title = page.title
			}
			if meta.Caption == "" {
				meta.Caption = page.caption
			}
			if meta.Author == "" {
				meta.Author = page.author
			}
		} else {
			s.logger.Debug().Err(err).Str("url", rawURL).Msg("Embed page fallback failed")
		}
	}

	return meta
}

// download retrieves media bytes with a size cap.
func (s *Service) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, models.FetchError("failed to build media request", err)
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.FetchError("media download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.FetchError(fmt.Sprintf("media download returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, models.FetchError("failed to read media body", err)
	}
	if len(data) > maxMediaBytes {
		return nil, models.FetchError("media exceeds size limit", nil)
	}
	if len(data) == 0 {
		return nil, models.FetchError("media download returned empty body", nil)
	}
	return data, nil
}

func (s *Service) endpointFor(platform string) string {
	switch platform {
	case models.PlatformTikTok:
		return s.config.TikTokEndpoint
	case models.PlatformInstagram:
		return s.config.InstagramEndpoint
	default:
		return ""
	}
}

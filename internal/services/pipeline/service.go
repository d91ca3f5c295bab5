// Package pipeline runs the fetch, frame, analyze, and cache stages for
// one post URL. Both the dispatcher's direct path and the queue workers
// process through it.
package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/models"
	"github.com/ternarybob/reelscan/internal/services/frames"
)

// Service is the concrete Pipeline implementation.
type Service struct {
	fetcher  interfaces.MediaFetcher
	frames   interfaces.FrameExtractor
	analyzer interfaces.Analyzer
	cache    interfaces.CacheStorage
	cacheTTL time.Duration
	logger   arbor.ILogger
}

// NewService wires the pipeline stages together.
func NewService(fetcher interfaces.MediaFetcher, extractor interfaces.FrameExtractor, analyzer interfaces.Analyzer, cache interfaces.CacheStorage, cacheTTL time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		fetcher:  fetcher,
		frames:   extractor,
		analyzer: analyzer,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Process runs the full pipeline for one URL and returns the analysis
// payload. A cache write failure is logged but does not fail the run;
// the caller still gets the fresh result.
func (s *Service) Process(ctx context.Context, url, requestID, locale string) (*models.Content, error) {
	start := time.Now()

	media, meta, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	request := &models.AnalysisRequest{
		Transcript:  meta.Transcript,
		Caption:     meta.Caption,
		Description: meta.Description,
		Locale:      locale,
		Platform:    meta.Platform,
	}

	var payload *models.Content
	var representative []byte

	if meta.IsSlideshow {
		images, slideshowMeta, err := s.fetcher.FetchSlideshow(ctx, url)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, models.FormatError("slideshow fetch returned no images", nil)
		}
		meta = slideshowMeta

		payload, err = s.analyzer.AnalyzeSlideshow(ctx, images, request)
		if err != nil {
			return nil, err
		}
		representative = images[0]
	} else {
		representative, err = s.frames.FirstFrame(ctx, media)
		if err != nil {
			return nil, err
		}

		payload, err = s.analyzer.AnalyzeVideo(ctx, media, request)
		if err != nil {
			return nil, err
		}
	}

	// The representative image always wins over whatever the model put in
	// the field.
	payload.Image = frames.DataURI(representative)
	if payload.Creator == "" {
		payload.Creator = meta.Author
	}
	payload.Platform = meta.Platform

	fingerprint := common.Fingerprint(url, locale)
	if err := s.cache.Put(ctx, fingerprint, *payload, map[string]interface{}{
		"request_id": requestID,
		"slideshow":  meta.IsSlideshow,
	}, url, locale, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).
			Str("fingerprint", fingerprint).
			Str("request_id", requestID).
			Msg("Failed to cache analysis result")
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("platform", meta.Platform).
		Bool("slideshow", meta.IsSlideshow).
		Dur("duration", time.Since(start)).
		Msg("Pipeline run complete")

	return payload, nil
}

package interfaces

import (
	"context"

	"github.com/ternarybob/reelscan/internal/models"
)

// Analyzer turns media plus textual context into a structured content
// record via a multimodal model.
type Analyzer interface {
	// AnalyzeVideo analyzes raw video bytes.
	AnalyzeVideo(ctx context.Context, video []byte, req *models.AnalysisRequest) (*models.Content, error)

	// AnalyzeSlideshow analyzes an ordered list of slideshow images.
	AnalyzeSlideshow(ctx context.Context, images [][]byte, req *models.AnalysisRequest) (*models.Content, error)
}

// Pipeline runs the full fetch -> extract -> analyze -> cache-write
// sequence for one URL.
type Pipeline interface {
	Process(ctx context.Context, url, requestID, locale string) (*models.Content, error)
}

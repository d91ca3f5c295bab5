package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/models"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiAnalyzer analyzes media with Google's Gemini models. Gemini takes
// video bytes natively, so no frame extraction is needed.
type GeminiAnalyzer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

var _ interfaces.Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer creates a Gemini-backed analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, timeout time.Duration, logger arbor.ILogger) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiAnalyzer{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// AnalyzeVideo sends the video bytes and scraped context to Gemini.
func (a *GeminiAnalyzer) AnalyzeVideo(ctx context.Context, video []byte, req *models.AnalysisRequest) (*models.Content, error) {
	if len(video) == 0 {
		return nil, models.AnalyzerError("no video bytes to analyze", nil)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(video, "video/mp4"),
		genai.NewPartFromText(buildUserPrompt(req, false, 0)),
	}
	return a.generate(ctx, parts, req)
}

// AnalyzeSlideshow sends every slideshow image to Gemini in one request.
func (a *GeminiAnalyzer) AnalyzeSlideshow(ctx context.Context, images [][]byte, req *models.AnalysisRequest) (*models.Content, error) {
	if len(images) == 0 {
		return nil, models.AnalyzerError("no slideshow images to analyze", nil)
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img, "image/jpeg"))
	}
	parts = append(parts, genai.NewPartFromText(buildUserPrompt(req, true, len(images))))
	return a.generate(ctx, parts, req)
}

func (a *GeminiAnalyzer) generate(ctx context.Context, parts []*genai.Part, req *models.AnalysisRequest) (*models.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(), genai.RoleUser),
		Temperature:       genai.Ptr(float32(0.2)),
	})
	if err != nil {
		return nil, models.AnalyzerError("gemini request failed", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, models.AnalyzerError("gemini returned an empty response", nil)
	}

	a.logger.Debug().
		Str("model", a.model).
		Dur("duration", time.Since(start)).
		Msg("Gemini analysis complete")

	return parseContentResponse(text, req.Platform, "")
}

// responseText concatenates text parts across candidates.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
	}
	return text
}

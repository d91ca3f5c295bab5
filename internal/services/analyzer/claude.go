package analyzer

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/models"
)

const defaultClaudeModel = "claude-sonnet-4-5"

// ClaudeAnalyzer analyzes media with Anthropic's Claude models. Claude
// does not accept video input, so videos are reduced to their first
// frame before the request; the scraped transcript carries the audio
// context.
type ClaudeAnalyzer struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	frames  interfaces.FrameExtractor
	logger  arbor.ILogger
}

var _ interfaces.Analyzer = (*ClaudeAnalyzer)(nil)

// NewClaudeAnalyzer creates a Claude-backed analyzer.
func NewClaudeAnalyzer(apiKey, model string, timeout time.Duration, frames interfaces.FrameExtractor, logger arbor.ILogger) *ClaudeAnalyzer {
	if model == "" {
		model = defaultClaudeModel
	}
	return &ClaudeAnalyzer{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
		frames:  frames,
		logger:  logger,
	}
}

// AnalyzeVideo extracts the first frame and analyzes it together with the
// scraped transcript and caption.
func (a *ClaudeAnalyzer) AnalyzeVideo(ctx context.Context, video []byte, req *models.AnalysisRequest) (*models.Content, error) {
	if len(video) == 0 {
		return nil, models.AnalyzerError("no video bytes to analyze", nil)
	}

	frame, err := a.frames.FirstFrame(ctx, video)
	if err != nil {
		return nil, err
	}

	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(frame)),
		anthropic.NewTextBlock(buildUserPrompt(req, false, 0) +
			"\nOnly the first frame of the video is attached; rely on the transcript and caption for the rest."),
	}
	return a.send(ctx, blocks, req)
}

// AnalyzeSlideshow sends every slideshow image to Claude in one request.
func (a *ClaudeAnalyzer) AnalyzeSlideshow(ctx context.Context, images [][]byte, req *models.AnalysisRequest) (*models.Content, error) {
	if len(images) == 0 {
		return nil, models.AnalyzerError("no slideshow images to analyze", nil)
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(img)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(buildUserPrompt(req, true, len(images))))
	return a.send(ctx, blocks, req)
}

func (a *ClaudeAnalyzer) send(ctx context.Context, blocks []anthropic.ContentBlockParamUnion, req *models.AnalysisRequest) (*models.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: buildSystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, models.AnalyzerError("claude request failed", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, models.AnalyzerError("claude returned an empty response", nil)
	}

	a.logger.Debug().
		Str("model", a.model).
		Dur("duration", time.Since(start)).
		Msg("Claude analysis complete")

	return parseContentResponse(text, req.Platform, "")
}

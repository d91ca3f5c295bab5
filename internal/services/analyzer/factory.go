package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/interfaces"
)

// NewAnalyzer builds the configured multimodal analyzer.
func NewAnalyzer(ctx context.Context, config *common.Config, frames interfaces.FrameExtractor, logger arbor.ILogger) (interfaces.Analyzer, error) {
	ac := config.Analyzer

	timeout := 120 * time.Second
	if d, err := time.ParseDuration(ac.Timeout); err == nil && d > 0 {
		timeout = d
	}

	switch ac.Provider {
	case "gemini", "":
		if ac.GoogleAPIKey == "" {
			return nil, fmt.Errorf("google api key is required for the gemini analyzer")
		}
		return NewGeminiAnalyzer(ctx, ac.GoogleAPIKey, ac.Model, timeout, logger)
	case "claude":
		if ac.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key is required for the claude analyzer")
		}
		if frames == nil {
			return nil, fmt.Errorf("the claude analyzer requires a frame extractor")
		}
		return NewClaudeAnalyzer(ac.AnthropicAPIKey, ac.Model, timeout, frames, logger), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider: %s", ac.Provider)
	}
}

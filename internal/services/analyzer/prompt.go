// Package analyzer turns raw media plus scraped context into structured
// Content records via a multimodal LLM provider.
package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/reelscan/internal/models"
)

// systemPrompt instructs the model to emit exactly one JSON object
// matching the Content schema.
const systemPrompt = `You are a short-form video analyst. You receive a video or a set of slideshow images from TikTok or Instagram, plus any transcript or caption text that was scraped with it.

Respond with exactly one JSON object and nothing else. No markdown fences, no commentary. The object has these fields:

{
  "title": "short descriptive title (required)",
  "description": "2-3 sentence summary of the content",
  "transcript": "spoken words, corrected from the provided transcript or transcribed from audio context",
  "hook": "the first 1-2 sentences that grab the viewer",
  "format": "one of: %s",
  "niche": "one of: %s",
  "nicheDetail": "a more specific sub-niche, free text",
  "secondaryNiches": ["other applicable niches from the same list"],
  "tags": ["5-10 short lowercase topic tags"]
}

Leave a field out when you cannot determine it. Never invent a transcript for silent content.`

// buildSystemPrompt fills the enum sets into the instruction text.
func buildSystemPrompt() string {
	return fmt.Sprintf(systemPrompt,
		strings.Join(models.ContentFormats, ", "),
		strings.Join(models.ContentNiches, ", "))
}

// buildUserPrompt renders the scraped textual context for the model.
func buildUserPrompt(req *models.AnalysisRequest, slideshow bool, imageCount int) string {
	var b strings.Builder

	if slideshow {
		fmt.Fprintf(&b, "Analyze this %d-image slideshow post.\n", imageCount)
	} else {
		b.WriteString("Analyze this video.\n")
	}
	if req.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", req.Platform)
	}
	if req.Locale != "" {
		fmt.Fprintf(&b, "Respond in locale: %s\n", req.Locale)
	}
	if req.Caption != "" {
		fmt.Fprintf(&b, "\nCaption:\n%s\n", req.Caption)
	}
	if req.Description != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", req.Description)
	}
	if req.Transcript != "" {
		fmt.Fprintf(&b, "\nScraped transcript (may contain errors):\n%s\n", req.Transcript)
	}

	return b.String()
}

// parseContentResponse extracts the JSON object from a model response and
// decodes it into a validated Content record. Models occasionally wrap
// the object in markdown fences or prose despite instructions.
func parseContentResponse(text, platform, creator string) (*models.Content, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, models.AnalyzerError("no JSON object in model response", nil)
	}

	var content models.Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, models.AnalyzerError("failed to parse model response", err)
	}

	content.Platform = platform
	if content.Creator == "" {
		content.Creator = creator
	}
	content.NormalizeEnums()

	if err := content.Validate(); err != nil {
		return nil, models.AnalyzerError(err.Error(), nil)
	}
	return &content, nil
}

// extractJSONObject returns the first balanced top-level JSON object in
// the text, stripping markdown fences first.
func extractJSONObject(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return cleaned[start : i+1]
				}
			}
		}
	}
	return ""
}

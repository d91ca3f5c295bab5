package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/reelscan/internal/models"
)

func TestParseContentResponse(t *testing.T) {
	raw := `{
		"title": "5 minute pasta",
		"description": "A quick weeknight pasta recipe.",
		"hook": "You are cooking pasta wrong.",
		"format": "tutorial",
		"niche": "food",
		"nicheDetail": "quick recipes",
		"secondaryNiches": ["lifestyle"],
		"tags": ["pasta", "recipe", "quick"]
	}`

	content, err := parseContentResponse(raw, models.PlatformTikTok, "chefuser")
	require.NoError(t, err)
	assert.Equal(t, "5 minute pasta", content.Title)
	assert.Equal(t, "tutorial", content.Format)
	assert.Equal(t, "food", content.Niche)
	assert.Equal(t, models.PlatformTikTok, content.Platform)
	assert.Equal(t, "chefuser", content.Creator)
	assert.False(t, content.Cached)
}

func TestParseContentResponseMarkdownFences(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"title\": \"gym day\", \"niche\": \"fitness\"}\n```\n"

	content, err := parseContentResponse(raw, models.PlatformInstagram, "")
	require.NoError(t, err)
	assert.Equal(t, "gym day", content.Title)
	assert.Equal(t, "fitness", content.Niche)
}

func TestParseContentResponseNormalizesEnums(t *testing.T) {
	raw := `{"title": "x", "format": "cinematic-masterpiece", "niche": "underwater basket weaving"}`

	content, err := parseContentResponse(raw, models.PlatformTikTok, "")
	require.NoError(t, err)
	assert.Empty(t, content.Format, "unknown formats are dropped")
	assert.Equal(t, "other", content.Niche, "unknown niches collapse to other")
}

func TestParseContentResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "prose only", raw: "I could not analyze this video."},
		{name: "truncated object", raw: `{"title": "x", "descrip`},
		{name: "missing title", raw: `{"niche": "food"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseContentResponse(tt.raw, models.PlatformTikTok, "")
			require.Error(t, err)
			assert.Equal(t, models.ErrKindAnalyzer, models.ErrorKindOf(err))
		})
	}
}

func TestExtractJSONObjectNestedAndStrings(t *testing.T) {
	raw := `noise {"title": "a {brace} in \"text\"", "tags": ["x"]} trailing`
	got := extractJSONObject(raw)
	assert.Equal(t, `{"title": "a {brace} in \"text\"", "tags": ["x"]}`, got)
}

func TestBuildUserPrompt(t *testing.T) {
	req := &models.AnalysisRequest{
		Transcript: "hello everyone",
		Caption:    "new video #fun",
		Locale:     "de-DE",
		Platform:   models.PlatformTikTok,
	}

	prompt := buildUserPrompt(req, false, 0)
	assert.Contains(t, prompt, "hello everyone")
	assert.Contains(t, prompt, "new video #fun")
	assert.Contains(t, prompt, "de-DE")

	slideshow := buildUserPrompt(req, true, 4)
	assert.Contains(t, slideshow, "4-image slideshow")
}

func TestBuildSystemPromptListsEnums(t *testing.T) {
	prompt := buildSystemPrompt()
	for _, format := range models.ContentFormats {
		assert.True(t, strings.Contains(prompt, format), "format %s missing from prompt", format)
	}
	assert.Contains(t, prompt, "other")
}

// -----------------------------------------------------------------------
// Content - structured analysis record produced by the pipeline
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// Platform identifiers for supported short-form video sources.
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
)

// ContentFormats is the closed set of values the analyzer may assign to
// Content.Format. Free-text formats from the model are discarded.
var ContentFormats = []string{
	"talking_head",
	"voiceover",
	"tutorial",
	"vlog",
	"skit",
	"interview",
	"slideshow",
	"montage",
	"text_overlay",
	"reaction",
}

// ContentNiches is the closed set of values the analyzer may assign to
// Content.Niche.
var ContentNiches = []string{
	"fitness",
	"food",
	"beauty",
	"fashion",
	"travel",
	"finance",
	"business",
	"technology",
	"education",
	"entertainment",
	"lifestyle",
	"health",
	"parenting",
	"sports",
	"gaming",
	"music",
	"diy",
	"pets",
	"other",
}

// Content is the structured record produced by the analyzer for a single
// video or slideshow. It is what the dispatcher returns to callers, what
// the cache stores, and what the results collection persists per job.
type Content struct {
	Title           string   `json:"title" firestore:"title"`
	Description     string   `json:"description,omitempty" firestore:"description,omitempty"`
	Transcript      string   `json:"transcript,omitempty" firestore:"transcript,omitempty"`
	Hook            string   `json:"hook,omitempty" firestore:"hook,omitempty"`
	Image           string   `json:"image,omitempty" firestore:"image,omitempty"`
	Format          string   `json:"format,omitempty" firestore:"format,omitempty"`
	Niche           string   `json:"niche,omitempty" firestore:"niche,omitempty"`
	NicheDetail     string   `json:"nicheDetail,omitempty" firestore:"nicheDetail,omitempty"`
	SecondaryNiches []string `json:"secondaryNiches,omitempty" firestore:"secondaryNiches,omitempty"`
	Creator         string   `json:"creator,omitempty" firestore:"creator,omitempty"`
	Platform        string   `json:"platform,omitempty" firestore:"platform,omitempty"`
	Tags            []string `json:"tags,omitempty" firestore:"tags,omitempty"`

	// Cached is set by the dispatcher when the record was served from the
	// cache store, never by the analyzer.
	Cached bool `json:"cached,omitempty" firestore:"cached,omitempty"`
}

// Validate checks the minimal contract for an analyzer result.
func (c *Content) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("content title is required")
	}
	return nil
}

// NormalizeEnums drops format/niche values outside the closed sets so the
// stored record only ever contains known enum members.
func (c *Content) NormalizeEnums() {
	if c.Format != "" && !containsString(ContentFormats, c.Format) {
		c.Format = ""
	}
	if c.Niche != "" && !containsString(ContentNiches, c.Niche) {
		c.Niche = "other"
	}
}

// Clone returns a deep copy. Callers that mark a cached payload must not
// mutate the stored entry.
func (c *Content) Clone() *Content {
	clone := *c
	if c.SecondaryNiches != nil {
		clone.SecondaryNiches = append([]string(nil), c.SecondaryNiches...)
	}
	if c.Tags != nil {
		clone.Tags = append([]string(nil), c.Tags...)
	}
	return &clone
}

// ToJSON serializes the content record.
func (c *Content) ToJSON() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	return data, nil
}

// ContentFromJSON deserializes a content record.
func ContentFromJSON(data []byte) (*Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return &c, nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// MediaMeta describes what a fetcher learned about a post alongside the
// raw media bytes.
type MediaMeta struct {
	Platform    string `json:"platform"`
	IsSlideshow bool   `json:"is_slideshow"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Description string `json:"description,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	ImageCount  int    `json:"image_count,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// AnalysisRequest carries the textual context handed to the analyzer
// alongside the media bytes.
type AnalysisRequest struct {
	Transcript  string
	Caption     string
	Description string
	Locale      string
	Platform    string
}

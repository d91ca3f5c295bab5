package interfaces

import (
	"context"

	"github.com/ternarybob/reelscan/internal/models"
)

// MediaFetcher retrieves raw media and metadata for a supported post URL.
type MediaFetcher interface {
	// Fetch downloads the post's primary media. For slideshows the
	// returned bytes are the first image; meta.IsSlideshow is set and
	// FetchSlideshow should be used for the full image list.
	Fetch(ctx context.Context, url string) ([]byte, *models.MediaMeta, error)

	// FetchSlideshow downloads every image of a multi-image post.
	FetchSlideshow(ctx context.Context, url string) ([][]byte, *models.MediaMeta, error)
}

// FrameExtractor produces a representative JPEG frame from raw video
// bytes.
type FrameExtractor interface {
	FirstFrame(ctx context.Context, video []byte) ([]byte, error)
}

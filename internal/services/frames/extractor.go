// Package frames extracts representative still frames from video bytes
// by shelling out to ffmpeg.
package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"

	_ "image/png"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/models"
)

// Extractor produces first-frame JPEGs via an ffmpeg subprocess. ffmpeg
// reads the video from stdin and writes a single image to stdout, so no
// temp files are involved.
type Extractor struct {
	ffmpegPath  string
	timeout     time.Duration
	jpegQuality int
	logger      arbor.ILogger
}

// NewExtractor creates a frame extractor from frames configuration.
func NewExtractor(config *common.FramesConfig, logger arbor.ILogger) *Extractor {
	path := config.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}

	timeout := 20 * time.Second
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}

	quality := config.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	return &Extractor{
		ffmpegPath:  path,
		timeout:     timeout,
		jpegQuality: quality,
		logger:      logger,
	}
}

// FirstFrame decodes the video's first frame and returns it as JPEG
// bytes.
func (e *Extractor) FirstFrame(ctx context.Context, video []byte) ([]byte, error) {
	if len(video) == 0 {
		return nil, models.FormatError("no video bytes for frame extraction", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// -frames:v 1 stops after the first decoded frame; image2pipe keeps
	// everything on stdio.
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprintf("%d", jpegQualityToQScale(e.jpegQuality)),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(video)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, models.FormatError("frame extraction timed out", ctx.Err())
		}
		return nil, models.FormatError(fmt.Sprintf("unsupported format: ffmpeg failed: %s", firstLine(stderr.String())), err)
	}

	frame := stdout.Bytes()
	if len(frame) == 0 {
		return nil, models.FormatError("unsupported format: ffmpeg produced no frame", nil)
	}

	// Round-trip through image/jpeg to validate the output and apply the
	// configured quality.
	decoded, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, models.FormatError("invalid frame image from ffmpeg", err)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, decoded, &jpeg.Options{Quality: e.jpegQuality}); err != nil {
		return nil, models.FormatError("failed to encode frame", err)
	}

	e.logger.Debug().
		Int("bytes", out.Len()).
		Dur("duration", time.Since(start)).
		Msg("First frame extracted")

	return out.Bytes(), nil
}

// DataURI wraps JPEG bytes in the data-URI form stored on
// Content.Image.
func DataURI(frame []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
}

// jpegQualityToQScale maps a 1-100 JPEG quality to ffmpeg's inverted
// 2-31 qscale range.
func jpegQualityToQScale(quality int) int {
	q := 31 - (quality*29)/100
	if q < 2 {
		q = 2
	}
	if q > 31 {
		q = 31
	}
	return q
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

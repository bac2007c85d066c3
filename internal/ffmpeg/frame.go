package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/keagan/momentforge/pkg/util"
)

// SampleFrame decodes the single frame at timestamp seconds and returns it as
// an image. The frame travels over stdout as PNG so nothing touches disk.
func (e *Executor) SampleFrame(ctx context.Context, videoPath string, timestamp float64) (image.Image, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if timestamp < 0 {
		timestamp = 0
	}

	var stdout bytes.Buffer
	err := e.Run(ctx, RunOptions{
		Args: []string{
			// input seeking is frame accurate when re-encoding
			"-ss", util.FormatSeconds(timestamp),
			"-i", videoPath,
			"-frames:v", "1",
			"-an",
			"-f", "image2pipe",
			"-vcodec", "png",
			"-",
		},
		Stdout: &stdout,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("frame sampling")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sample frame at %.3fs: %w", timestamp, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("sample frame at %.3fs: %w", timestamp, ErrNoFrame)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", timestamp, err)
	}
	return img, nil
}

package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
)

// Compress re-encodes input into a web-friendly H.264/AAC mono file.
func (e *Executor) Compress(ctx context.Context, input, output string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Int("crf", e.crf).
		Str("preset", e.preset).
		Msg("compressing video")

	args := []string{
		"-i", input,
		"-vf", NewFilterBuilder().EvenDimensions().Build(),
		"-vcodec", DefaultVideoCodec,
		"-preset", e.preset,
		"-crf", strconv.Itoa(e.crf),
		"-pix_fmt", "yuv420p",
		"-acodec", DefaultAudioCodec,
		"-ac", "1",
		"-movflags", "+faststart",
		output,
	}

	opts := RunOptions{
		Args: args,
		ProgressHandler: func(p *Progress) {
			e.logger.Debug().
				Int("frame", p.Frame).
				Str("time", p.Time).
				Str("speed", p.Speed).
				Msg("compression progress")
		},
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("compression")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	e.logger.Info().Str("output", output).Msg("compression complete")
	return nil
}

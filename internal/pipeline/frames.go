package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/metrics"
	"github.com/keagan/momentforge/internal/moments"
	"github.com/keagan/momentforge/pkg/util"
)

// extractMoments samples every timestamp, saves its image into the stage
// and collects its features. Frames are processed in order, one at a time.
// It only fails when ctx is done.
func (p *Pipeline) extractMoments(ctx context.Context, logger zerolog.Logger, video VideoDescriptor, paths VideoPaths, st *stage, timestamps []float64) ([]moments.Moment, error) {
	start := time.Now()
	defer metrics.ObserveStage("extract", start)

	framesDir := st.path(paths.FramesName)
	canSave := true
	if err := util.EnsureDir(framesDir); err != nil {
		logger.Warn().Err(err).Msg("could not create frames dir, images will not be saved")
		canSave = false
	}

	// the last decodable frame starts one period before the end
	last := math.Max(video.Duration-1/video.FPS, 0)
	emitted := make(map[string]bool, len(timestamps))
	out := make([]moments.Moment, 0, len(timestamps))

	logger.Info().Int("keyframes", len(timestamps)).Msg("extracting features")

	for i, ts := range timestamps {
		if ctx.Err() != nil {
			return nil, interrupted(ctx)
		}

		ts = math.Max(0, math.Min(ts, last))
		frameID := moments.FrameID(ts)
		frameLog := logger.With().Str("frame", frameID).Logger()
		if emitted[frameID] {
			frameLog.Debug().Float64("timestamp", ts).Msg("frame already analysed, skipping")
			continue
		}

		frameLog.Debug().
			Int("index", i+1).
			Int("total", len(timestamps)).
			Float64("timestamp", ts).
			Msg("processing keyframe")

		img, err := p.deps.Sampler.SampleFrame(ctx, video.SourcePath, ts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, interrupted(ctx)
			}
			frameLog.Warn().Err(err).Msg("could not sample frame, skipping")
			metrics.FrameFailuresTotal.WithLabelValues("sample").Inc()
			continue
		}

		var imagePath, imageFile string
		if canSave {
			imageFile = filepath.Join(framesDir, frameID+".jpeg")
			if err := saveJPEG(imageFile, img, p.config.FFmpeg.JPEGQuality); err != nil {
				frameLog.Warn().Err(err).Msg("could not save frame image")
				metrics.FrameFailuresTotal.WithLabelValues("save").Inc()
				imageFile = ""
			} else {
				imagePath = paths.FrameImage(frameID)
			}
		}

		m, err := p.collector.Collect(ctx, moments.Frame{
			VideoID:   video.VideoID,
			Timestamp: ts,
			ImagePath: imagePath,
			Image:     img,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, interrupted(ctx)
			}
			frameLog.Warn().Err(err).Msg("could not assemble moment, skipping")
			if imageFile != "" {
				util.CleanupPaths(imageFile)
			}
			continue
		}

		emitted[frameID] = true
		out = append(out, m)
	}

	logger.Info().
		Int("moments", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("feature extraction complete")
	return out, nil
}

func saveJPEG(path string, img image.Image, quality int) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

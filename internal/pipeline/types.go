package pipeline

import (
	"context"
	"image"

	"github.com/keagan/momentforge/internal/ai"
	"github.com/keagan/momentforge/internal/ffmpeg"
)

// VideoDescriptor is what the probe learned about one source video.
// Duration and FPS of 0 mean the probe failed.
type VideoDescriptor struct {
	VideoID    string
	SourcePath string
	Duration   float64
	FPS        float64
}

// Prober reads container metadata.
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// ShotDetector finds shot boundaries and writes the raw tool log to logPath.
type ShotDetector interface {
	DetectShotBoundaries(ctx context.Context, videoPath, logPath string) (*ffmpeg.ShotDetection, error)
}

// FrameSampler decodes the frame shown at a timestamp.
type FrameSampler interface {
	SampleFrame(ctx context.Context, videoPath string, timestamp float64) (image.Image, error)
}

// Compressor transcodes the source into its web-sized copy.
type Compressor interface {
	Compress(ctx context.Context, input, output string) error
}

// Deps are the collaborators a Pipeline drives. The ffmpeg Executor
// satisfies the first four.
type Deps struct {
	Prober     Prober
	Detector   ShotDetector
	Sampler    FrameSampler
	Compressor Compressor
	Features   ai.FeatureExtractor
}

// FromExecutor fills the media ports of Deps from one ffmpeg executor.
func FromExecutor(exec *ffmpeg.Executor, features ai.FeatureExtractor) Deps {
	return Deps{
		Prober:     exec,
		Detector:   exec,
		Sampler:    exec,
		Compressor: exec,
		Features:   features,
	}
}

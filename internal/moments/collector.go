package moments

import (
	"context"
	"errors"
	"image"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/ai"
	"github.com/keagan/momentforge/internal/logging"
)

// Feature names reported to a FailureFunc.
const (
	FeatureEmbedding = "embedding"
	FeatureObjects   = "objects"
	FeatureText      = "text"
	FeatureColor     = "color"
)

// FailureFunc observes a capability that failed for one frame.
type FailureFunc func(feature string, err error)

// Frame is a sampled keyframe waiting for feature extraction.
type Frame struct {
	VideoID   string
	Timestamp float64
	// ImagePath is the dataset-relative path of the saved image, or empty.
	ImagePath string
	Image     image.Image
}

// Collector runs every feature capability against a frame and assembles the
// Moment. A failing capability only empties its own feature.
type Collector struct {
	logger    zerolog.Logger
	features  ai.FeatureExtractor
	onFailure FailureFunc
}

// NewCollector creates a Collector. onFailure may be nil.
func NewCollector(logger zerolog.Logger, features ai.FeatureExtractor, onFailure FailureFunc) *Collector {
	return &Collector{
		logger:    logging.WithComponent(logger, "collector"),
		features:  features,
		onFailure: onFailure,
	}
}

// Collect extracts features from frame. It only fails when the frame itself
// cannot become a Moment or ctx is done.
func (c *Collector) Collect(ctx context.Context, frame Frame) (Moment, error) {
	if err := ctx.Err(); err != nil {
		return Moment{}, err
	}
	fields := Fields{
		VideoID:   frame.VideoID,
		Timestamp: frame.Timestamp,
		ImagePath: frame.ImagePath,
	}

	embedding, err := c.features.Embed(ctx, frame.Image)
	switch {
	case err != nil:
		c.failed(frame, FeatureEmbedding, err)
	case !FiniteEmbedding(embedding):
		c.failed(frame, FeatureEmbedding, errors.New("embedding has non-finite values"))
	default:
		fields.Embedding = embedding
	}

	if fields.Objects, err = c.features.DetectObjects(ctx, frame.Image); err != nil {
		c.failed(frame, FeatureObjects, err)
		fields.Objects = nil
	}
	if fields.Text, err = c.features.ExtractText(ctx, frame.Image); err != nil {
		c.failed(frame, FeatureText, err)
		fields.Text = nil
	}
	if fields.Colors, fields.AverageColor, err = c.features.ColorStats(ctx, frame.Image); err != nil {
		c.failed(frame, FeatureColor, err)
		fields.Colors, fields.AverageColor = nil, [3]int{}
	}

	if err := ctx.Err(); err != nil {
		return Moment{}, err
	}
	return New(fields)
}

func (c *Collector) failed(frame Frame, feature string, err error) {
	event := c.logger.Warn()
	if errors.Is(err, ai.ErrUnavailable) {
		event = c.logger.Debug()
	}
	event.Err(err).
		Str("video_id", frame.VideoID).
		Float64("timestamp", frame.Timestamp).
		Str("feature", feature).
		Msg("feature extraction failed")

	if c.onFailure != nil {
		c.onFailure(feature, err)
	}
}

package ai

import (
	"context"
	"errors"
	"image"
	"io"
)

// ErrUnavailable is returned by a Toolkit capability that was not configured.
var ErrUnavailable = errors.New("capability unavailable")

// Object is one detection above the confidence threshold. Box holds
// [x1, y1, x2, y2] in pixels of the analysed frame.
type Object struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// TextRegion is one recognised line of text and its bounding quadrilateral.
type TextRegion struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BoxPoints  [][2]float64 `json:"box_points"`
}

// ColorShare is one of the most frequent exact colors of a frame.
type ColorShare struct {
	Color      [3]int  `json:"color"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Embedder produces an image embedding vector.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// ObjectDetector finds labelled objects in an image.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img image.Image) ([]Object, error)
}

// TextExtractor recognises text in an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) ([]TextRegion, error)
}

// ColorAnalyzer computes dominant colors and the average RGB of an image.
type ColorAnalyzer interface {
	ColorStats(ctx context.Context, img image.Image) ([]ColorShare, [3]int, error)
}

// FeatureExtractor bundles every per-frame capability the pipeline calls.
type FeatureExtractor interface {
	Embedder
	ObjectDetector
	TextExtractor
	ColorAnalyzer
}

// Toolkit assembles a FeatureExtractor from individually optional backends.
// A nil backend answers with ErrUnavailable.
type Toolkit struct {
	Embedding Embedder
	Objects   ObjectDetector
	Text      TextExtractor
	Colors    ColorAnalyzer
}

func (t *Toolkit) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if t.Embedding == nil {
		return nil, ErrUnavailable
	}
	return t.Embedding.Embed(ctx, img)
}

func (t *Toolkit) DetectObjects(ctx context.Context, img image.Image) ([]Object, error) {
	if t.Objects == nil {
		return nil, ErrUnavailable
	}
	return t.Objects.DetectObjects(ctx, img)
}

func (t *Toolkit) ExtractText(ctx context.Context, img image.Image) ([]TextRegion, error) {
	if t.Text == nil {
		return nil, ErrUnavailable
	}
	return t.Text.ExtractText(ctx, img)
}

func (t *Toolkit) ColorStats(ctx context.Context, img image.Image) ([]ColorShare, [3]int, error) {
	if t.Colors == nil {
		return nil, [3]int{}, ErrUnavailable
	}
	return t.Colors.ColorStats(ctx, img)
}

// Close releases every backend that holds resources.
func (t *Toolkit) Close() error {
	var errs []error
	for _, backend := range []any{t.Embedding, t.Objects, t.Text, t.Colors} {
		if c, ok := backend.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

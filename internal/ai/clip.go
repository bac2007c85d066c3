package ai

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// CLIP image normalization constants.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// CLIPOptions configures the ONNX CLIP image encoder.
type CLIPOptions struct {
	ModelPath string
	// RuntimeLib points at the onnxruntime shared library; empty uses the
	// platform default.
	RuntimeLib string
	InputName  string
	OutputName string
	Dimensions int
	ImageSize  uint
}

// CLIPEmbedder computes L2-normalized image embeddings with a CLIP vision
// encoder exported to ONNX. It is not safe for concurrent use; wrap it with
// Serialize when sharing it between videos.
type CLIPEmbedder struct {
	logger  zerolog.Logger
	opts    CLIPOptions
	session *ort.DynamicAdvancedSession
}

// NewCLIPEmbedder loads the model and initializes the ONNX runtime.
func NewCLIPEmbedder(logger zerolog.Logger, opts CLIPOptions) (*CLIPEmbedder, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}
	if opts.InputName == "" {
		opts.InputName = "pixel_values"
	}
	if opts.OutputName == "" {
		opts.OutputName = "image_embeds"
	}
	if opts.ImageSize == 0 {
		opts.ImageSize = 224
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 768
	}

	if !ort.IsInitialized() {
		if opts.RuntimeLib != "" {
			ort.SetSharedLibraryPath(opts.RuntimeLib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CLIP session: %w", err)
	}

	logger.Info().
		Str("model", opts.ModelPath).
		Str("input", opts.InputName).
		Str("output", opts.OutputName).
		Int("dimensions", opts.Dimensions).
		Msg("CLIP model loaded")

	return &CLIPEmbedder{
		logger:  logger.With().Str("feature", "clip").Logger(),
		opts:    opts,
		session: sess,
	}, nil
}

// Embed implements Embedder.
func (c *CLIPEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(c.opts.ImageSize)
	pixels, err := ort.NewTensor(ort.NewShape(1, 3, size, size), c.preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("image preprocessing failed: %w", err)
	}
	defer pixels.Destroy()

	embeds, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.opts.Dimensions)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tensor: %w", c.opts.OutputName, err)
	}
	defer embeds.Destroy()

	if err := c.session.Run([]ort.Value{pixels}, []ort.Value{embeds}); err != nil {
		return nil, fmt.Errorf("CLIP inference failed: %w", err)
	}

	vec := normalizeL2(embeds.GetData())
	c.logger.Trace().Int("dimensions", len(vec)).Msg("embedding computed")
	return vec, nil
}

// preprocess produces CHW float32 pixel values with CLIP normalization.
func (c *CLIPEmbedder) preprocess(img image.Image) []float32 {
	size := c.opts.ImageSize
	resized := resize.Resize(size, size, img, resize.Bilinear)
	bounds := resized.Bounds()
	plane := int(size * size)

	data := make([]float32, 3*plane)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data[idx] = (float32(r>>8)/255 - clipMean[0]) / clipStd[0]
			data[plane+idx] = (float32(g>>8)/255 - clipMean[1]) / clipStd[1]
			data[2*plane+idx] = (float32(b>>8)/255 - clipMean[2]) / clipStd[2]
			idx++
		}
	}
	return data
}

// normalizeL2 returns a unit-length copy of v, or a zero vector of the same
// length when v has no magnitude.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Close releases the CLIP session and the ONNX environment.
func (c *CLIPEmbedder) Close() error {
	c.logger.Info().Msg("closing CLIP model session")
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
		c.session = nil
	}
	return ort.DestroyEnvironment()
}

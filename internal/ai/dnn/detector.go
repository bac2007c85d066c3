// Package dnn runs SSD object detection through OpenCV's DNN module. It is
// kept apart from package ai so that only binaries which load a detector link
// against OpenCV.
package dnn

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/keagan/momentforge/internal/ai"
)

// inputSize is the square input resolution of SSD MobileNet models.
const inputSize = 300

// Options configures a Detector.
type Options struct {
	ModelPath     string
	ConfigPath    string
	Labels        ai.Labels
	MinConfidence float64
}

// Detector implements ai.ObjectDetector. It is not safe for concurrent use.
type Detector struct {
	logger zerolog.Logger
	net    gocv.Net
	opts   Options
}

// New loads the network from a frozen graph and its config.
func New(logger zerolog.Logger, opts Options) (*Detector, error) {
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}
	if _, err := os.Stat(opts.ConfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", opts.ConfigPath)
	}
	if opts.Labels == nil {
		opts.Labels = ai.COCOLabels
	}

	net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", opts.ModelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info().
		Str("model", opts.ModelPath).
		Float64("min_confidence", opts.MinConfidence).
		Int("labels", len(opts.Labels)).
		Msg("object detection network loaded")

	return &Detector{
		logger: logger.With().Str("feature", "objects").Logger(),
		net:    net,
		opts:   opts,
	}, nil
}

// DetectObjects implements ai.ObjectDetector.
func (d *Detector) DetectObjects(ctx context.Context, img image.Image) ([]ai.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(inputSize, inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	detections := output.Reshape(1, output.Total()/7)
	defer detections.Close()

	rows := make([]ai.SSDRow, detections.Rows())
	for i := range rows {
		for j := 0; j < 7; j++ {
			rows[i][j] = detections.GetFloatAt(i, j)
		}
	}

	objects := ai.DecodeSSD(rows, mat.Cols(), mat.Rows(), d.opts.MinConfidence, d.opts.Labels)
	d.logger.Trace().Int("objects", len(objects)).Msg("detection complete")
	return objects, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}

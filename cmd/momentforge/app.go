package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/ai"
	"github.com/keagan/momentforge/internal/ai/dnn"
	"github.com/keagan/momentforge/internal/batch"
	"github.com/keagan/momentforge/internal/config"
	"github.com/keagan/momentforge/internal/ffmpeg"
	"github.com/keagan/momentforge/internal/metrics"
	"github.com/keagan/momentforge/internal/pipeline"
)

// app holds everything a batch run needs.
type app struct {
	runner *batch.Runner
	close  []func()
}

func (a *app) Close() {
	for i := len(a.close) - 1; i >= 0; i-- {
		a.close[i]()
	}
}

func newApp(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (*app, error) {
	exec, err := newExecutor(logger, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{}
	features := newToolkit(logger, cfg)
	queue := ai.NewQueue(logger, 0)
	a.close = append(a.close, func() {
		queue.Close()
		if err := features.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to release feature backends")
		}
	})

	pipe, err := pipeline.New(logger, cfg, pipeline.FromExecutor(exec, ai.Serialize(queue, features)))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = batch.NewRunner(logger, pipe, cfg.Dataset, cfg.Batch.Concurrency)

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.close = append(a.close, cancel)
		go func() {
			if err := metrics.Serve(metricsCtx, logger, cfg.Metrics.Addr); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	return a, nil
}

func newExecutor(logger zerolog.Logger, cfg *config.Config) (*ffmpeg.Executor, error) {
	return ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:     cfg.FFmpeg.BinaryPath,
		FFprobePath:    cfg.FFmpeg.ProbePath,
		Threads:        cfg.FFmpeg.Threads,
		SceneThreshold: cfg.FFmpeg.SceneThreshold,
		ShotTimeout:    cfg.FFmpeg.ShotTimeout,
		CRF:            cfg.FFmpeg.CRF,
		Preset:         cfg.FFmpeg.Preset,
	})
}

// newToolkit loads every configured feature backend. A backend that cannot
// be loaded is left out and its feature stays empty in reports.
func newToolkit(logger zerolog.Logger, cfg *config.Config) *ai.Toolkit {
	fc := cfg.Features
	tk := &ai.Toolkit{
		Colors: ai.NewPixelColors(logger, fc.DominantColors, fc.ColorSampleSize),
	}

	if fc.CLIP.ModelPath != "" {
		emb, err := ai.NewCLIPEmbedder(logger, ai.CLIPOptions{
			ModelPath:  fc.CLIP.ModelPath,
			RuntimeLib: fc.CLIP.RuntimeLib,
			InputName:  fc.CLIP.InputName,
			OutputName: fc.CLIP.OutputName,
			Dimensions: fc.CLIP.Dimensions,
			ImageSize:  fc.CLIP.ImageSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("CLIP embedder unavailable, embeddings will be null")
		} else {
			tk.Embedding = emb
		}
	} else {
		logger.Info().Msg("no CLIP model configured, embeddings disabled")
	}

	if fc.Objects.ModelPath != "" {
		labels := ai.COCOLabels
		if fc.Objects.LabelsPath != "" {
			loaded, err := ai.LoadLabels(fc.Objects.LabelsPath)
			if err != nil {
				logger.Warn().Err(err).Msg("could not load labels, using COCO labels")
			} else {
				labels = loaded
			}
		}
		det, err := dnn.New(logger, dnn.Options{
			ModelPath:     fc.Objects.ModelPath,
			ConfigPath:    fc.Objects.ConfigPath,
			Labels:        labels,
			MinConfidence: fc.MinObjectConfidence,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("object detector unavailable")
		} else {
			tk.Objects = det
		}
	} else {
		logger.Info().Msg("no detection model configured, object detection disabled")
	}

	ocr, err := ai.NewTesseract(logger, ai.TesseractOptions{
		BinaryPath:    fc.OCR.BinaryPath,
		Language:      fc.OCR.Language,
		MinConfidence: fc.MinTextConfidence,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("OCR unavailable")
	} else {
		tk.Text = ocr
	}

	return tk
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/config"
	"github.com/keagan/momentforge/internal/keyframes"
	"github.com/keagan/momentforge/internal/logging"
	"github.com/keagan/momentforge/internal/metrics"
	"github.com/keagan/momentforge/internal/moments"
	"github.com/keagan/momentforge/internal/report"
	"github.com/keagan/momentforge/pkg/util"
)

// KeyframeSelector picks the timestamps to analyse.
type KeyframeSelector interface {
	Select(boundaries []float64, duration, fps float64) []float64
}

// Pipeline orchestrates the analysis of one video: cleanup, precheck, probe,
// shot detection, keyframe selection, compression, frame extraction and the
// report. Every call to Analyze publishes exactly one report.
type Pipeline struct {
	logger    zerolog.Logger
	config    config.Config
	layout    Layout
	deps      Deps
	selector  KeyframeSelector
	collector *moments.Collector
	writer    *report.Writer
	now       func() time.Time
}

// New creates a pipeline. cfg is copied; later changes to it are not seen.
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Prober == nil || deps.Detector == nil || deps.Sampler == nil ||
		deps.Compressor == nil || deps.Features == nil {
		return nil, fmt.Errorf("pipeline dependencies incomplete")
	}

	return &Pipeline{
		logger: logging.WithComponent(logger, "pipeline"),
		config: *cfg,
		layout: NewLayout(cfg.Dataset),
		deps:   deps,
		selector: keyframes.NewSelector(logger, keyframes.Options{
			Strategy:       keyframes.Strategy(cfg.Keyframes.Strategy),
			BoundaryOffset: cfg.Keyframes.BoundaryOffset,
			FixedInterval:  cfg.Keyframes.Interval,
		}),
		collector: moments.NewCollector(logger, deps.Features, func(feature string, _ error) {
			metrics.FeatureFailuresTotal.WithLabelValues(feature).Inc()
		}),
		writer: report.NewWriter(logger),
		now:    time.Now,
	}, nil
}

// WithSelector replaces the keyframe selector built from the config.
func (p *Pipeline) WithSelector(s KeyframeSelector) *Pipeline {
	p.selector = s
	return p
}

// Layout returns the dataset layout the pipeline writes to.
func (p *Pipeline) Layout() Layout {
	return p.layout
}

// Analyze runs the full analysis of videoID and publishes its report. The
// returned error is non-nil only when not even a fallback report could be
// written; analysis failures are reported through the report's status.
func (p *Pipeline) Analyze(ctx context.Context, videoID string) (*report.Report, error) {
	start := time.Now()
	logger := logging.ForVideo(p.logger, videoID)
	paths := p.layout.Video(videoID)
	header := p.header(paths)

	metrics.ActiveVideos.Inc()
	defer metrics.ActiveVideos.Dec()

	logger.Info().Str("source", paths.Source).Msg("starting analysis")

	// Stage 1: remove what crashed runs left behind
	if removed, err := removeLeftovers(paths.Dir); err != nil {
		logger.Warn().Err(err).Msg("could not remove leftovers of a previous run")
	} else if len(removed) > 0 {
		logger.Info().Strs("removed", removed).Msg("removed leftovers of a previous run")
	}

	var r *report.Report
	st, err := newStage(paths)
	if err == nil {
		defer st.discard()
		r = p.run(ctx, logger, paths, st, header)
		err = p.publish(paths, st, r)
	}
	if err != nil {
		r, err = p.writer.WriteFallback(paths.Report(), header, err)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrReportWrite, err)
		}
	}

	p.finish(logger, r, start)
	return r, err
}

// Fail publishes a failed report for videoID without running any stage.
func (p *Pipeline) Fail(videoID string, cause error) (*report.Report, error) {
	paths := p.layout.Video(videoID)
	r := report.Failed(p.header(paths), cause.Error(), p.now())
	if err := p.writer.Write(paths.Report(), r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	return r, nil
}

func (p *Pipeline) header(paths VideoPaths) report.Header {
	return report.Header{
		VideoID:            paths.VideoID,
		OriginalFilename:   paths.SourceName,
		CompressedFilename: paths.CompressedName,
	}
}

// run executes stages 2 to 7 inside the stage dir and returns the report to
// publish. It never returns nil.
func (p *Pipeline) run(ctx context.Context, logger zerolog.Logger, paths VideoPaths, st *stage, header report.Header) *report.Report {
	fail := func(err error) *report.Report {
		logger.Error().Err(err).Msg("analysis failed")
		return report.Failed(header, err.Error(), p.now())
	}

	// Stage 2: precheck
	if !util.FileExists(paths.Source) {
		return fail(fmt.Errorf("%w: %s", ErrMissingSource, paths.Source))
	}

	// Stage 3: probe
	stageStart := time.Now()
	info, err := p.deps.Prober.ProbeVideo(ctx, paths.Source)
	metrics.ObserveStage("probe", stageStart)
	switch {
	case ctx.Err() != nil:
		return fail(interrupted(ctx))
	case err != nil:
		return fail(fmt.Errorf("%w: %w", ErrProbe, err))
	case info == nil:
		return fail(fmt.Errorf("%w: empty probe result", ErrProbe))
	case !info.Valid():
		return fail(fmt.Errorf("%w: duration=%v, fps=%v", ErrProbe, info.Duration, info.FPS))
	}

	video := VideoDescriptor{
		VideoID:    paths.VideoID,
		SourcePath: paths.Source,
		Duration:   info.Duration,
		FPS:        info.FPS,
	}
	header.DurationSeconds = video.Duration
	header.FPS = video.FPS

	logger.Info().
		Float64("duration", video.Duration).
		Float64("fps", video.FPS).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("video metadata extracted")

	// Stage 4: shot detection
	stageStart = time.Now()
	detection, err := p.deps.Detector.DetectShotBoundaries(ctx, paths.Source, st.path(paths.ShotLogName))
	metrics.ObserveStage("detect", stageStart)
	if ctx.Err() != nil {
		return fail(interrupted(ctx))
	}
	if err == nil && detection == nil {
		err = fmt.Errorf("empty detection result")
	}
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrDetection, err))
	}
	switch {
	case detection.TimedOut:
		logger.Warn().Msg("shot detection timed out, using the start of the video only")
	case detection.ExitError != nil:
		logger.Warn().Err(detection.ExitError).Msg("shot detection exited with an error, using parsed boundaries")
	}
	if detection.LogError != nil {
		logger.Warn().Err(detection.LogError).Msg("could not write shot detection log")
	}
	boundaries := detection.Boundaries

	logger.Info().
		Int("boundaries", len(boundaries)).
		Dur("elapsed", detection.Elapsed).
		Msg("shot detection complete")

	// Stage 5: keyframe selection
	timestamps, err := p.selectKeyframes(boundaries, video.Duration, video.FPS)
	if err != nil {
		return fail(err)
	}
	if len(timestamps) == 0 {
		logger.Warn().Msg("no keyframes selected, skipping compression and extraction")
		return report.Completed(header, boundaries, nil, p.now())
	}
	logger.Info().Int("keyframes", len(timestamps)).Msg("keyframes selected")

	// Stage 6: compression, best effort
	header.CompressedSize = p.compress(ctx, logger, paths, st)
	if ctx.Err() != nil {
		return fail(interrupted(ctx))
	}

	// Stage 7: sample frames and extract features
	keyframeMoments, err := p.extractMoments(ctx, logger, video, paths, st, timestamps)
	if err != nil {
		return fail(err)
	}

	return report.Completed(header, boundaries, keyframeMoments, p.now())
}

func (p *Pipeline) selectKeyframes(boundaries []float64, duration, fps float64) (timestamps []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSelection, r)
		}
	}()
	return p.selector.Select(boundaries, duration, fps), nil
}

func (p *Pipeline) compress(ctx context.Context, logger zerolog.Logger, paths VideoPaths, st *stage) int64 {
	start := time.Now()
	out := st.path(paths.CompressedName)

	if err := p.deps.Compressor.Compress(ctx, paths.Source, out); err != nil {
		logger.Warn().Err(err).Msg("compression failed, continuing without a compressed copy")
		util.CleanupPaths(out)
		return 0
	}
	metrics.ObserveStage("compress", start)

	size := util.FileSize(out)
	logger.Info().
		Int64("bytes", size).
		Dur("elapsed", time.Since(start)).
		Msg("video compressed")
	return size
}

// publish writes r into the stage and swaps the staged outputs into place.
func (p *Pipeline) publish(paths VideoPaths, st *stage, r *report.Report) error {
	if err := p.writer.Write(st.path(paths.ReportName), r); err != nil {
		return err
	}
	return st.commit()
}

func (p *Pipeline) finish(logger zerolog.Logger, r *report.Report, start time.Time) {
	elapsed := time.Since(start)
	metrics.VideoAnalysisDuration.Observe(elapsed.Seconds())

	if r == nil {
		metrics.VideosAnalyzedTotal.WithLabelValues("unwritten").Inc()
		logger.Error().Dur("elapsed", elapsed).Msg("analysis finished without a report")
		return
	}
	metrics.VideosAnalyzedTotal.WithLabelValues(string(r.Status)).Inc()
	metrics.KeyframesAnalyzedTotal.Add(float64(r.KeyframeCount))

	logger.Info().
		Str("status", string(r.Status)).
		Int("keyframes", r.KeyframeCount).
		Dur("elapsed", elapsed).
		Msg("analysis finished")
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

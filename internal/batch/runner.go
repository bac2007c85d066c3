// Package batch runs the analysis pipeline over many videos of a dataset.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/momentforge/internal/config"
	"github.com/keagan/momentforge/internal/logging"
	"github.com/keagan/momentforge/internal/report"
)

// StatusUnwritten counts videos for which no report could be written.
const StatusUnwritten report.Status = "unwritten"

// Analyzer analyses one video and publishes its report.
type Analyzer interface {
	Analyze(ctx context.Context, videoID string) (*report.Report, error)
	// Fail publishes a failed report without analysing.
	Fail(videoID string, cause error) (*report.Report, error)
}

// Summary describes one batch run.
type Summary struct {
	RunID    string
	Total    int
	ByStatus map[report.Status]int
	// Skipped counts ids that were never started because the run was
	// cancelled.
	Skipped int
	Elapsed time.Duration
}

// Runner analyses videos on a bounded pool. A failing or panicking video
// never stops the batch.
type Runner struct {
	logger      zerolog.Logger
	analyzer    Analyzer
	dataset     config.DatasetConfig
	concurrency int
}

// NewRunner creates a runner. concurrency below 1 runs videos one at a time.
func NewRunner(logger zerolog.Logger, analyzer Analyzer, dataset config.DatasetConfig, concurrency int) *Runner {
	return &Runner{
		logger:      logging.WithComponent(logger, "batch"),
		analyzer:    analyzer,
		dataset:     dataset,
		concurrency: max(concurrency, 1),
	}
}

// Discover lists the video ids under the dataset root: non-hidden
// directories that contain their source file. Ids are sorted.
func (r *Runner) Discover() ([]string, error) {
	entries, err := os.ReadDir(r.dataset.RootDir)
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		source := filepath.Join(r.dataset.RootDir, name, r.dataset.SourceFilename(name))
		info, err := os.Stat(source)
		if err != nil || info.IsDir() {
			r.logger.Warn().
				Str("dir", name).
				Str("expected", filepath.Base(source)).
				Msg("directory has no source video, skipping")
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// Run analyses ids, at most concurrency at a time. Cancelling ctx stops
// scheduling new videos; videos already running are interrupted by the
// pipeline. The returned error is ctx's error when the run was cut short.
func (r *Runner) Run(ctx context.Context, ids []string) (Summary, error) {
	start := time.Now()
	ids = dedupe(ids)
	summary := Summary{
		RunID:    uuid.NewString(),
		Total:    len(ids),
		ByStatus: make(map[report.Status]int),
	}
	logger := r.logger.With().Str("run_id", summary.RunID).Logger()

	logger.Info().
		Int("videos", len(ids)).
		Int("concurrency", r.concurrency).
		Msg("starting batch")

	var (
		mu   sync.Mutex
		done atomic.Int64
		g    errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			// cancelled while waiting for a free slot
			if ctx.Err() != nil {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}
			videoStart := time.Now()
			rep := r.analyzeOne(ctx, id)

			status := StatusUnwritten
			if rep != nil {
				status = rep.Status
			}
			mu.Lock()
			summary.ByStatus[status]++
			mu.Unlock()

			logger.Info().
				Str("video_id", id).
				Str("status", string(status)).
				Int64("done", done.Add(1)).
				Int("total", len(ids)).
				Dur("elapsed", time.Since(videoStart)).
				Msg("video finished")
			return nil
		})
	}
	_ = g.Wait()

	summary.Elapsed = time.Since(start)
	event := logger.Info()
	if summary.Skipped > 0 {
		event = logger.Warn()
	}
	event.
		Int("total", summary.Total).
		Int("skipped", summary.Skipped).
		Interface("statuses", summary.ByStatus).
		Dur("elapsed", summary.Elapsed).
		Msg("batch finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// analyzeOne runs the analyzer for one video, converting panics and escaped
// errors into a failed report.
func (r *Runner) analyzeOne(ctx context.Context, id string) (rep *report.Report) {
	logger := logging.ForVideo(r.logger, id)

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("analysis panicked")
			rep = r.fail(logger, id, fmt.Errorf("fatal error during analysis: %v", p))
		}
	}()

	rep, err := r.analyzer.Analyze(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("analysis returned an error")
		rep = r.fail(logger, id, fmt.Errorf("fatal error during analysis: %w", err))
	}
	return rep
}

func (r *Runner) fail(logger zerolog.Logger, id string, cause error) *report.Report {
	rep, err := r.analyzer.Fail(id, cause)
	if err != nil {
		logger.Error().Err(errors.Join(cause, err)).Msg("could not write error report")
		return nil
	}
	return rep
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
)

// scdet logs the score before the time: "[scdet @ 0x…] lavfi.scd.score: 42.100, lavfi.scd.time: 2.04".
var scdetTimeRe = regexp.MustCompile(`\[scdet[^\]]*\][^\n]*?lavfi\.scd\.time:\s*(\d+(?:\.\d+)?)`)

// DetectShotBoundaries runs ffmpeg's scdet filter over a video and returns the
// detected cut timestamps. The raw tool output is always written to logPath.
//
// Failures of the tool itself are soft: a non-zero exit still yields the
// boundaries parsed so far, and exceeding the shot timeout yields [0.0] with
// TimedOut set. An error is returned only when ffmpeg cannot be started or
// the caller's ctx is done.
func (e *Executor) DetectShotBoundaries(ctx context.Context, videoPath, logPath string) (*ShotDetection, error) {
	e.logger.Info().
		Str("input", videoPath).
		Float64("threshold", e.sceneThreshold).
		Dur("timeout", e.shotTimeout).
		Msg("detecting shot boundaries")

	runCtx, cancel := context.WithTimeout(ctx, e.shotTimeout)
	defer cancel()

	var (
		buf bytes.Buffer
		mu  sync.Mutex
	)

	filter := NewFilterBuilder().
		SceneDetect(e.sceneThreshold).
		ShowInfo().
		Build()

	start := time.Now()
	runErr := e.Run(runCtx, RunOptions{
		Args: []string{
			"-i", videoPath,
			"-vf", filter,
			"-an",
			"-f", "null",
			"-",
		},
		LogHandler: func(line string) {
			mu.Lock()
			buf.WriteString(line)
			buf.WriteByte('\n')
			mu.Unlock()
		},
	})
	elapsed := time.Since(start)

	mu.Lock()
	output := buf.String()
	mu.Unlock()

	det := &ShotDetection{
		LogPath: logPath,
		Elapsed: elapsed,
	}

	if logPath != "" {
		if err := os.WriteFile(logPath, []byte(output), 0644); err != nil {
			det.LogError = err
			e.logger.Warn().Err(err).Str("log", logPath).Msg("could not write shot log")
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("shot detection interrupted: %w", ctx.Err())
	}
	if errors.Is(runErr, ErrStart) {
		return nil, fmt.Errorf("shot detection: %w", runErr)
	}

	switch {
	case runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		det.TimedOut = true
		det.Boundaries = []float64{0.0}
		e.logger.Warn().
			Dur("timeout", e.shotTimeout).
			Msg("shot detection timed out, using the start boundary only")
		return det, nil
	case runErr != nil:
		det.ExitError = runErr
		e.logger.Warn().Err(runErr).Msg("ffmpeg exited with an error during shot detection")
	}

	det.Boundaries = ParseShotLog(output)

	e.logger.Info().
		Int("boundaries", len(det.Boundaries)).
		Dur("elapsed", elapsed).
		Msg("shot detection complete")
	return det, nil
}

// ParseShotLog extracts scdet cut times from ffmpeg output. The result always
// starts with 0.0 and is sorted.
func ParseShotLog(output string) []float64 {
	boundaries := []float64{0.0}
	for _, m := range scdetTimeRe.FindAllStringSubmatch(output, -1) {
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		boundaries = append(boundaries, t)
	}
	sort.Float64s(boundaries)
	return boundaries
}

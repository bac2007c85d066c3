// Package keyframes turns detected shot boundaries into the timestamps at
// which frames are sampled.
package keyframes

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/logging"
)

// Strategy names how keyframes are placed relative to shot boundaries.
type Strategy string

const (
	StrategyMiddle   Strategy = "middle"
	StrategyStart    Strategy = "start"
	StrategyEnd      Strategy = "end"
	StrategyBoundary Strategy = "boundary"
	StrategyAll      Strategy = "all"
)

// Known reports whether s is one of the supported strategies.
func (s Strategy) Known() bool {
	switch s {
	case StrategyMiddle, StrategyStart, StrategyEnd, StrategyBoundary, StrategyAll:
		return true
	}
	return false
}

// Options configures a Selector.
type Options struct {
	Strategy Strategy
	// BoundaryOffset shifts start/end keyframes away from the cut, in seconds.
	BoundaryOffset float64
	// FixedInterval adds a keyframe every FixedInterval seconds when > 0.
	FixedInterval float64
}

// Selector computes keyframe timestamps. It holds no state besides its
// options and is safe for concurrent use.
type Selector struct {
	opts   Options
	logger zerolog.Logger
}

// NewSelector creates a selector. An unknown strategy is accepted and falls
// back to middle at selection time.
func NewSelector(logger zerolog.Logger, opts Options) *Selector {
	return &Selector{
		opts:   opts,
		logger: logging.WithComponent(logger, "keyframes"),
	}
}

// Options returns the selector configuration.
func (s *Selector) Options() Options {
	return s.opts
}

// Select returns sorted, unique keyframe timestamps within [0, duration]
// (allowing half a frame past the end). Adjacent timestamps are always more
// than half a frame period apart.
func (s *Selector) Select(boundaries []float64, duration, fps float64) []float64 {
	if !finite(duration) || duration <= 0 {
		if !finite(fps) || fps <= 0 {
			s.logger.Warn().Float64("fps", fps).Msg("invalid fps and duration, no keyframes")
		}
		return []float64{}
	}
	if !finite(fps) || fps <= 0 {
		s.logger.Warn().Float64("fps", fps).Msg("invalid fps, using first and last frame only")
		return []float64{0, duration}
	}

	period := 1 / fps
	minGap := period / 2

	strategy := s.opts.Strategy
	if !strategy.Known() {
		s.logger.Warn().Str("strategy", string(strategy)).Msg("unknown keyframe strategy, using middle")
		strategy = StrategyMiddle
	}

	normalized := NormalizeBoundaries(boundaries, duration, fps)
	candidates := StrategyTimestamps(strategy, normalized, duration, fps, s.opts.BoundaryOffset)
	candidates = append(candidates, IntervalTimestamps(s.opts.FixedInterval, duration, fps)...)

	limit := duration + period/2
	valid := make([]float64, 0, len(candidates))
	for _, ts := range candidates {
		if finite(ts) && ts >= 0 && ts <= limit {
			valid = append(valid, ts)
		}
	}
	if len(valid) == 0 {
		return []float64{}
	}
	sort.Float64s(valid)

	unique := make([]float64, 0, len(valid))
	unique = append(unique, valid[0])
	for _, ts := range valid[1:] {
		if ts-unique[len(unique)-1] > minGap {
			unique = append(unique, ts)
		}
	}

	if unique[0] > 2*minGap {
		unique = append([]float64{0}, unique...)
	}
	if duration-unique[len(unique)-1] > 2*minGap {
		unique = append(unique, duration)
	}

	return unique
}

// NormalizeBoundaries sorts boundaries, drops values that are negative or
// not finite and guarantees that 0 and duration are present, unless some
// element already lies within half a frame period of them.
func NormalizeBoundaries(boundaries []float64, duration, fps float64) []float64 {
	minGap := 0.0
	if fps > 0 {
		minGap = 1 / fps / 2
	}

	out := make([]float64, 0, len(boundaries)+2)
	for _, b := range boundaries {
		if finite(b) && b >= 0 {
			out = append(out, b)
		}
	}
	sort.Float64s(out)

	if !near(out, 0, minGap) {
		out = append([]float64{0}, out...)
	}
	if duration > 0 && !near(out, duration, minGap) {
		out = append(out, duration)
		sort.Float64s(out)
	}
	return out
}

// StrategyTimestamps returns the raw candidates a strategy contributes for
// already normalized boundaries, before filtering and deduplication.
func StrategyTimestamps(strategy Strategy, boundaries []float64, duration, fps, offset float64) []float64 {
	if fps <= 0 {
		return nil
	}
	period := 1 / fps
	minGap := period / 2

	switch strategy {
	case StrategyStart:
		return startTimestamps(boundaries, duration, offset, minGap)
	case StrategyEnd:
		return endTimestamps(boundaries, offset, minGap)
	case StrategyBoundary:
		return append([]float64(nil), boundaries...)
	case StrategyAll:
		seen := make(map[float64]struct{}, len(boundaries)*2)
		var out []float64
		for _, ts := range append(middleTimestamps(boundaries, period), boundaries...) {
			if _, dup := seen[ts]; dup {
				continue
			}
			seen[ts] = struct{}{}
			out = append(out, ts)
		}
		sort.Float64s(out)
		return out
	default:
		return middleTimestamps(boundaries, period)
	}
}

// IntervalTimestamps returns every positive multiple of interval up to half a
// frame past duration.
func IntervalTimestamps(interval, duration, fps float64) []float64 {
	if !finite(interval) || interval <= 0 || duration <= 0 {
		return nil
	}
	limit := duration
	if fps > 0 {
		limit += 1 / fps / 2
	}

	var out []float64
	for k := 1; ; k++ {
		ts := float64(k) * interval
		if ts > limit {
			break
		}
		out = append(out, ts)
	}
	return out
}

func middleTimestamps(boundaries []float64, period float64) []float64 {
	var out []float64
	for i := 0; i+1 < len(boundaries); i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end > start+period {
			out = append(out, (start+end)/2)
		}
	}
	return out
}

// startTimestamps places a keyframe just after every cut. The shifted time
// never passes the following boundary.
func startTimestamps(boundaries []float64, duration, offset, minGap float64) []float64 {
	var out []float64
	for i, b := range boundaries {
		switch {
		case i == 0:
			out = append(out, b)
		case b < duration:
			ts := b + offset
			if i+1 < len(boundaries) && ts > boundaries[i+1] {
				ts = boundaries[i+1]
			}
			out = append(out, ts)
		}
	}
	if len(out) == 0 || math.Abs(out[len(out)-1]-duration) > 2*minGap {
		out = append(out, duration)
	}
	return out
}

// endTimestamps places a keyframe just before every cut. The shifted time
// never precedes the previous boundary and the final boundary is kept as is.
func endTimestamps(boundaries []float64, offset, minGap float64) []float64 {
	var out []float64
	for i := 1; i < len(boundaries); i++ {
		b := boundaries[i]
		switch {
		case i == len(boundaries)-1:
			out = append(out, b)
		case b > 0:
			ts := b - offset
			if ts < boundaries[i-1] {
				ts = boundaries[i-1]
			}
			out = append(out, ts)
		}
	}
	if len(out) == 0 || out[0] > 2*minGap {
		out = append([]float64{0}, out...)
	}
	return out
}

func near(values []float64, target, tolerance float64) bool {
	for _, v := range values {
		if math.Abs(v-target) <= tolerance {
			return true
		}
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

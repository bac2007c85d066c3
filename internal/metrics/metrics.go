// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	VideosAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momentforge_videos_analyzed_total",
		Help: "Total number of videos analysed, by report status",
	}, []string{"status"})

	VideoAnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "momentforge_video_analysis_duration_seconds",
		Help:    "Wall-clock time to analyse one video",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "momentforge_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	KeyframesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "momentforge_keyframes_analyzed_total",
		Help: "Total number of moments written across all videos",
	})

	FrameFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momentforge_frame_failures_total",
		Help: "Keyframes that could not be sampled or saved",
	}, []string{"reason"})

	FeatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momentforge_feature_failures_total",
		Help: "Per-frame feature extraction failures",
	}, []string{"feature"})

	ActiveVideos = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "momentforge_active_videos",
		Help: "Number of videos currently being analysed",
	})
)

// ObserveStage records the time spent in a pipeline stage since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics and /healthz on addr until ctx is cancelled.
func Serve(ctx context.Context, logger zerolog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

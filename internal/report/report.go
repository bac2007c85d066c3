// Package report defines the per-video analysis report and writes it to its
// fixed location in the dataset.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/keagan/momentforge/internal/moments"
)

// Status is the terminal state of one video's analysis.
type Status string

const (
	StatusWithKeyframes Status = "completed_with_keyframes"
	StatusNoKeyframes   Status = "completed_no_keyframes"
	StatusFailed        Status = "failed"
)

// DateLayout renders processing_date_utc as ISO-8601 with microseconds and
// an explicit +00:00 offset.
const DateLayout = "2006-01-02T15:04:05.000000-07:00"

// Report is the JSON artifact written for every attempted video.
type Report struct {
	VideoID            string           `json:"video_id"`
	OriginalFilename   string           `json:"original_filename"`
	CompressedFilename string           `json:"compressed_filename"`
	DurationSeconds    float64          `json:"duration_seconds"`
	FPS                float64          `json:"fps"`
	CompressedSize     int64            `json:"compressed_file_size_bytes"`
	ProcessingDate     string           `json:"processing_date_utc"`
	SceneChanges       []float64        `json:"scene_change_timestamps"`
	KeyframeCount      int              `json:"keyframes_analyzed_count"`
	Keyframes          []moments.Moment `json:"analyzed_keyframes"`
	Status             Status           `json:"analysis_status"`
	ErrorMessage       *string          `json:"error_message"`
}

// Header carries the video-level fields shared by every report variant.
type Header struct {
	VideoID            string
	OriginalFilename   string
	CompressedFilename string
	DurationSeconds    float64
	FPS                float64
	CompressedSize     int64
}

// Completed builds the report of a successful run. The status follows from
// whether any moments were produced. Non-finite or negative numbers are
// reported as 0 and non-finite boundaries are dropped.
func Completed(h Header, boundaries []float64, keyframes []moments.Moment, at time.Time) *Report {
	if keyframes == nil {
		keyframes = []moments.Moment{}
	}
	status := StatusNoKeyframes
	if len(keyframes) > 0 {
		status = StatusWithKeyframes
	}

	scenes := make([]float64, 0, len(boundaries))
	for _, b := range boundaries {
		if !math.IsNaN(b) && !math.IsInf(b, 0) {
			scenes = append(scenes, b)
		}
	}
	sort.Float64s(scenes)

	return &Report{
		VideoID:            h.VideoID,
		OriginalFilename:   h.OriginalFilename,
		CompressedFilename: h.CompressedFilename,
		DurationSeconds:    nonNegative(h.DurationSeconds),
		FPS:                nonNegative(h.FPS),
		CompressedSize:     max(h.CompressedSize, 0),
		ProcessingDate:     FormatDate(at),
		SceneChanges:       scenes,
		KeyframeCount:      len(keyframes),
		Keyframes:          keyframes,
		Status:             status,
	}
}

// Failed builds the minimal report of a run that could not complete. Only
// the identifying fields of h are used.
func Failed(h Header, message string, at time.Time) *Report {
	return &Report{
		VideoID:            h.VideoID,
		OriginalFilename:   h.OriginalFilename,
		CompressedFilename: h.CompressedFilename,
		ProcessingDate:     FormatDate(at),
		SceneChanges:       []float64{0.0},
		Keyframes:          []moments.Moment{},
		Status:             StatusFailed,
		ErrorMessage:       &message,
	}
}

// FormatDate renders t in UTC using DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

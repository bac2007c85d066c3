package pipeline

import "errors"

// Failures that end a video's analysis with a failed report.
var (
	ErrMissingSource = errors.New("source video not found")
	ErrProbe         = errors.New("could not read duration/fps")
	ErrDetection     = errors.New("shot detection failed")
	ErrSelection     = errors.New("keyframe selection failed")
	ErrInterrupted   = errors.New("analysis interrupted")
)

// ErrReportWrite wraps the cause when the report could not be published and
// a fallback report was written instead.
var ErrReportWrite = errors.New("failed to save report")

package ffmpeg

import (
	"errors"
	"io"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   float64 // seconds
	Width      int
	Height     int
	FPS        float64
	FrameCount int64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Valid reports whether the probe produced a usable duration and frame rate.
func (v *VideoInfo) Valid() bool {
	return v != nil && v.Duration > 0 && v.FPS > 0
}

// ShotDetection is the outcome of one scene-detection run. Boundaries always
// starts with 0.0 and is sorted non-decreasing.
type ShotDetection struct {
	Boundaries []float64
	LogPath    string
	TimedOut   bool
	// ExitError records a non-zero ffmpeg exit; boundaries parsed before the
	// failure are still returned.
	ExitError error
	// LogError is set when the raw log could not be written.
	LogError error
	Elapsed  time.Duration
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	// Stdout receives raw stdout when set; otherwise stdout lines go to
	// LogHandler.
	Stdout io.Writer
}

// Options configures an Executor.
type Options struct {
	FFmpegPath     string
	FFprobePath    string
	Threads        int
	SceneThreshold float64
	ShotTimeout    time.Duration
	CRF            int
	Preset         string
}

// Default encoding settings
const (
	DefaultCRF            = 35
	DefaultPreset         = "medium"
	DefaultVideoCodec     = "libx264"
	DefaultAudioCodec     = "aac"
	DefaultSceneThreshold = 1.0
	DefaultShotTimeout    = 10 * time.Minute
)

var (
	// ErrStart means the ffmpeg process could not be launched at all.
	ErrStart = errors.New("ffmpeg could not be started")
	// ErrNoVideoStream is returned by ProbeVideo for inputs without video.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrNoFrame is returned when ffmpeg decodes nothing at a timestamp.
	ErrNoFrame = errors.New("no frame decoded")
)

package pipeline

import (
	"path"
	"path/filepath"

	"github.com/keagan/momentforge/internal/config"
)

// Layout resolves the per-video file names under the dataset root.
type Layout struct {
	root    string
	dataset config.DatasetConfig
}

// NewLayout creates a layout for the configured dataset.
func NewLayout(dataset config.DatasetConfig) Layout {
	return Layout{root: dataset.RootDir, dataset: dataset}
}

// Root returns the dataset root directory.
func (l Layout) Root() string { return l.root }

// VideoPaths are the locations belonging to one video id.
type VideoPaths struct {
	VideoID string
	Dir     string
	Source  string

	// artifact names inside Dir
	SourceName     string
	ReportName     string
	CompressedName string
	ShotLogName    string
	FramesName     string
}

// Video returns the paths of videoID.
func (l Layout) Video(videoID string) VideoPaths {
	dir := filepath.Join(l.root, videoID)
	sourceName := l.dataset.SourceFilename(videoID)
	return VideoPaths{
		VideoID:        videoID,
		Dir:            dir,
		Source:         filepath.Join(dir, sourceName),
		SourceName:     sourceName,
		ReportName:     l.dataset.ReportFilename,
		CompressedName: l.dataset.CompressedFilename,
		ShotLogName:    videoID + l.dataset.ShotLogSuffix,
		FramesName:     l.dataset.FramesSubdir,
	}
}

// Report is the published report path.
func (v VideoPaths) Report() string { return filepath.Join(v.Dir, v.ReportName) }

// Compressed is the published compressed video path.
func (v VideoPaths) Compressed() string { return filepath.Join(v.Dir, v.CompressedName) }

// ShotLog is the published shot detection log path.
func (v VideoPaths) ShotLog() string { return filepath.Join(v.Dir, v.ShotLogName) }

// Frames is the published keyframe image directory.
func (v VideoPaths) Frames() string { return filepath.Join(v.Dir, v.FramesName) }

// FrameImage is the dataset-relative, slash-separated path of a keyframe
// image as recorded in reports.
func (v VideoPaths) FrameImage(frameID string) string {
	return path.Join(v.VideoID, v.FramesName, frameID+".jpeg")
}

// artifacts lists the published outputs in commit order. The report comes
// last so that it only appears once everything it references is in place.
func (v VideoPaths) artifacts() []string {
	return []string{v.ShotLogName, v.CompressedName, v.FramesName, v.ReportName}
}

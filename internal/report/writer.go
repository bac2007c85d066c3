package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/logging"
	"github.com/keagan/momentforge/pkg/util"
)

// Encode renders r as 4-space indented JSON.
func Encode(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "    ")
}

// Read loads a report written by a Writer.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &r, nil
}

// Writer persists reports, replacing any previous file atomically.
type Writer struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewWriter creates a report writer.
func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{
		logger: logging.WithComponent(logger, "report"),
		now:    time.Now,
	}
}

// Write encodes r and places it at path.
func (w *Writer) Write(path string, r *Report) error {
	data, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	w.logger.Debug().
		Str("video_id", r.VideoID).
		Str("status", string(r.Status)).
		Str("path", path).
		Msg("report written")
	return nil
}

// WriteFallback writes a minimal failed report for h at path after the
// primary write failed with cause. It returns the report that was written.
func (w *Writer) WriteFallback(path string, h Header, cause error) (*Report, error) {
	w.logger.Error().Err(cause).Str("video_id", h.VideoID).Msg("saving report failed, writing fallback")

	fallback := Failed(h, fmt.Sprintf("failed to save report: %v", cause), w.now())
	if err := w.Write(path, fallback); err != nil {
		w.logger.Error().Err(err).Str("video_id", h.VideoID).Msg("could not save fallback report")
		return nil, fmt.Errorf("%w (fallback: %w)", cause, err)
	}
	return fallback, nil
}

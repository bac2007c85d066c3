// Package moments assembles the per-keyframe records ("moments") that the
// indexer consumes.
package moments

import (
	"errors"
	"fmt"
	"math"

	"github.com/keagan/momentforge/internal/ai"
)

// ErrInvalid is wrapped by New when a field cannot be represented in a report.
var ErrInvalid = errors.New("invalid moment")

// Moment is one analysed keyframe. Field names follow the report schema.
type Moment struct {
	MomentID     string    `json:"moment_id"`
	VideoID      string    `json:"video_id"`
	Timestamp    float64   `json:"timestamp_seconds"`
	FrameID      string    `json:"frame_identifier"`
	ImagePath    *string   `json:"keyframe_image_path"`
	Embedding    []float32 `json:"clip_embedding"`
	ObjectNames  []string  `json:"detected_object_names"`
	SearchWords  []string  `json:"extracted_search_words"`
	AverageColor [3]int    `json:"average_color_rgb"`
	Details      Details   `json:"detailed_features"`
}

// Details holds the raw capability outputs behind the flattened search fields.
type Details struct {
	Objects []ai.Object     `json:"detected_objects_detailed"`
	Text    []ai.TextRegion `json:"extracted_text_detailed"`
	Colors  []ai.ColorShare `json:"dominant_colors_info"`
}

// Fields are the inputs of New. An empty ImagePath means the frame image
// was not saved; a nil Embedding means no embedding was produced.
type Fields struct {
	VideoID      string
	Timestamp    float64
	ImagePath    string
	Embedding    []float32
	Objects      []ai.Object
	Text         []ai.TextRegion
	Colors       []ai.ColorShare
	AverageColor [3]int
}

// FrameID names a frame by its timestamp in whole milliseconds.
func FrameID(timestamp float64) string {
	return fmt.Sprintf("frame_%012d", int64(timestamp*1000))
}

// New validates and normalizes f into a Moment. Confidences that are not
// finite become 0 and the average color is clamped to 0..255.
func New(f Fields) (Moment, error) {
	if f.VideoID == "" {
		return Moment{}, fmt.Errorf("%w: empty video id", ErrInvalid)
	}
	if math.IsNaN(f.Timestamp) || math.IsInf(f.Timestamp, 0) || f.Timestamp < 0 {
		return Moment{}, fmt.Errorf("%w: timestamp %v", ErrInvalid, f.Timestamp)
	}
	if !FiniteEmbedding(f.Embedding) {
		return Moment{}, fmt.Errorf("%w: embedding has non-finite values", ErrInvalid)
	}

	frameID := FrameID(f.Timestamp)
	m := Moment{
		MomentID:    f.VideoID + "_" + frameID,
		VideoID:     f.VideoID,
		Timestamp:   f.Timestamp,
		FrameID:     frameID,
		Embedding:   f.Embedding,
		ObjectNames: ObjectNames(f.Objects),
		SearchWords: SearchWords(f.Text),
		Details: Details{
			Objects: make([]ai.Object, 0, len(f.Objects)),
			Text:    make([]ai.TextRegion, 0, len(f.Text)),
			Colors:  make([]ai.ColorShare, 0, len(f.Colors)),
		},
	}
	if f.ImagePath != "" {
		path := f.ImagePath
		m.ImagePath = &path
	}
	for i, c := range f.AverageColor {
		m.AverageColor[i] = min(max(c, 0), 255)
	}

	for _, o := range f.Objects {
		o.Confidence = finite(o.Confidence)
		for i := range o.Box {
			o.Box[i] = finite(o.Box[i])
		}
		m.Details.Objects = append(m.Details.Objects, o)
	}
	for _, t := range f.Text {
		t.Confidence = finite(t.Confidence)
		points := make([][2]float64, len(t.BoxPoints))
		for i, p := range t.BoxPoints {
			points[i] = [2]float64{finite(p[0]), finite(p[1])}
		}
		t.BoxPoints = points
		m.Details.Text = append(m.Details.Text, t)
	}
	for _, c := range f.Colors {
		c.Percentage = finite(c.Percentage)
		m.Details.Colors = append(m.Details.Colors, c)
	}
	return m, nil
}

// FiniteEmbedding reports whether every component of v is a finite number.
// A nil vector is finite.
func FiniteEmbedding(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

package ffmpeg

import (
	"strconv"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// SceneDetect adds the scdet filter. Scores are reported for every frame
// (s=0) and frames scoring at or above threshold are logged as cuts.
func (fb *FilterBuilder) SceneDetect(threshold float64) *FilterBuilder {
	fb.filters = append(fb.filters, "scdet=s=0:t="+strconv.FormatFloat(threshold, 'f', -1, 64))
	return fb
}

// ShowInfo adds the showinfo filter
func (fb *FilterBuilder) ShowInfo() *FilterBuilder {
	fb.filters = append(fb.filters, "showinfo")
	return fb
}

// EvenDimensions rounds the frame size down to even numbers, which libx264
// requires for yuv420p output.
func (fb *FilterBuilder) EvenDimensions() *FilterBuilder {
	fb.filters = append(fb.filters, "scale=trunc(iw/2)*2:trunc(ih/2)*2")
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.filters, ",")
}

package ai

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

// exactColorPixels is the largest frame whose colors are counted at full
// resolution. Bigger frames are counted on a thumbnail.
const exactColorPixels = 1920 * 1080

// PixelColors computes dominant colors and the average color of a frame from
// raw pixel statistics.
type PixelColors struct {
	logger     zerolog.Logger
	topN       int
	sampleSize uint
}

// NewPixelColors creates a color analyzer reporting the topN most frequent
// colors. Frames above exactColorPixels are downscaled so their longest side
// is sampleSize before counting.
func NewPixelColors(logger zerolog.Logger, topN int, sampleSize uint) *PixelColors {
	if sampleSize == 0 {
		sampleSize = 512
	}
	return &PixelColors{
		logger:     logger.With().Str("feature", "color").Logger(),
		topN:       topN,
		sampleSize: sampleSize,
	}
}

// ColorStats implements ColorAnalyzer.
func (c *PixelColors) ColorStats(ctx context.Context, img image.Image) ([]ColorShare, [3]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, [3]int{}, err
	}

	avg := averageColor(img)

	counted := img
	b := img.Bounds()
	if b.Dx()*b.Dy() > exactColorPixels {
		if b.Dx() >= b.Dy() {
			counted = resize.Resize(c.sampleSize, 0, img, resize.NearestNeighbor)
		} else {
			counted = resize.Resize(0, c.sampleSize, img, resize.NearestNeighbor)
		}
		c.logger.Debug().
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Uint("sample", c.sampleSize).
			Msg("counting colors on a thumbnail")
	}

	return dominantColors(counted, c.topN), avg, nil
}

// averageColor is the per-channel mean over all pixels, rounded and clamped.
func averageColor(img image.Image) [3]int {
	bounds := img.Bounds()
	pixels := float64(bounds.Dx() * bounds.Dy())
	if pixels == 0 {
		return [3]int{}
	}

	var rSum, gSum, bSum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += float64(r >> 8)
			gSum += float64(g >> 8)
			bSum += float64(b >> 8)
		}
	}

	return [3]int{
		clampChannel(rSum / pixels),
		clampChannel(gSum / pixels),
		clampChannel(bSum / pixels),
	}
}

func clampChannel(v float64) int {
	return int(math.Max(0, math.Min(255, math.Round(v))))
}

// dominantColors counts exact 8-bit colors and returns the topN by count.
// Ties are broken by color value so output is deterministic.
func dominantColors(img image.Image, topN int) []ColorShare {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 || topN <= 0 {
		return []ColorShare{}
	}

	counts := make(map[uint32]int)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			counts[(r>>8)<<16|(g>>8)<<8|b>>8]++
		}
	}

	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > topN {
		keys = keys[:topN]
	}

	shares := make([]ColorShare, 0, len(keys))
	for _, k := range keys {
		shares = append(shares, ColorShare{
			Color:      [3]int{int(k >> 16 & 0xff), int(k >> 8 & 0xff), int(k & 0xff)},
			Count:      counts[k],
			Percentage: float64(counts[k]) / float64(total) * 100,
		})
	}
	return shares
}

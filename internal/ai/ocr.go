package ai

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TesseractOptions configures the tesseract OCR adapter.
type TesseractOptions struct {
	BinaryPath    string
	Language      string
	MinConfidence float64
}

// Tesseract extracts text by piping frames through the tesseract CLI and
// reading its TSV output.
type Tesseract struct {
	logger zerolog.Logger
	path   string
	opts   TesseractOptions
}

// NewTesseract resolves the tesseract binary.
func NewTesseract(logger zerolog.Logger, opts TesseractOptions) (*Tesseract, error) {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "tesseract"
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	path, err := exec.LookPath(opts.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("tesseract not found: %w", err)
	}
	return &Tesseract{
		logger: logger.With().Str("feature", "ocr").Logger(),
		path:   path,
		opts:   opts,
	}, nil
}

// ExtractText implements TextExtractor.
func (t *Tesseract) ExtractText(ctx context.Context, img image.Image) ([]TextRegion, error) {
	var input bytes.Buffer
	if err := png.Encode(&input, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.path, "stdin", "stdout", "-l", t.opts.Language, "tsv")
	cmd.Stdin = &input
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	regions, err := ParseTesseractTSV(bytes.NewReader(out), t.opts.MinConfidence)
	if err != nil {
		return nil, err
	}
	t.logger.Trace().Int("regions", len(regions)).Msg("text extracted")
	return regions, nil
}

type tsvWord struct {
	text       string
	confidence float64
	left, top  float64
	right, bot float64
}

type lineKey struct {
	page, block, par, line int
}

// ParseTesseractTSV groups word rows of tesseract's TSV output into lines.
// A line's confidence is the mean of its word confidences scaled to 0..1;
// lines below minConfidence are dropped.
func ParseTesseractTSV(r io.Reader, minConfidence float64) ([]TextRegion, error) {
	// rows are split by hand: word text may contain bare quotes
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lines := make(map[lineKey][]tsvWord)
	var order []lineKey

	for scanner.Scan() {
		rec := strings.Split(scanner.Text(), "\t")
		// level 5 rows are words; the header and layout rows are skipped
		if len(rec) < 12 || rec[0] != "5" {
			continue
		}

		text := strings.TrimSpace(rec[11])
		conf, err := strconv.ParseFloat(rec[10], 64)
		if text == "" || err != nil || conf < 0 {
			continue
		}

		nums := make([]int, 0, 8)
		for _, field := range rec[1:10] {
			n, err := strconv.Atoi(field)
			if err != nil {
				n = 0
			}
			nums = append(nums, n)
		}
		key := lineKey{page: nums[0], block: nums[1], par: nums[2], line: nums[3]}
		left, top, width, height := float64(nums[5]), float64(nums[6]), float64(nums[7]), float64(nums[8])

		if _, seen := lines[key]; !seen {
			order = append(order, key)
		}
		lines[key] = append(lines[key], tsvWord{
			text:       text,
			confidence: conf / 100,
			left:       left,
			top:        top,
			right:      left + width,
			bot:        top + height,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse tesseract output: %w", err)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.page != b.page {
			return a.page < b.page
		}
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	regions := make([]TextRegion, 0, len(order))
	for _, key := range order {
		words := lines[key]
		texts := make([]string, 0, len(words))
		var confSum float64
		left, top := math.Inf(1), math.Inf(1)
		right, bot := math.Inf(-1), math.Inf(-1)
		for _, w := range words {
			texts = append(texts, w.text)
			confSum += w.confidence
			left = math.Min(left, w.left)
			top = math.Min(top, w.top)
			right = math.Max(right, w.right)
			bot = math.Max(bot, w.bot)
		}

		confidence := confSum / float64(len(words))
		if confidence < minConfidence {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       strings.Join(texts, " "),
			Confidence: confidence,
			BoxPoints:  [][2]float64{{left, top}, {right, top}, {right, bot}, {left, bot}},
		})
	}
	return regions, nil
}

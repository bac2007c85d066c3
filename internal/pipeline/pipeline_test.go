package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/momentforge/internal/ai"
	"github.com/keagan/momentforge/internal/config"
	"github.com/keagan/momentforge/internal/ffmpeg"
	"github.com/keagan/momentforge/internal/report"
)

const testVideo = "00001"

// fakeMedia stands in for the ffmpeg executor.
type fakeMedia struct {
	mu sync.Mutex

	info        *ffmpeg.VideoInfo
	probeErr    error
	boundaries  []float64
	detectErr   error
	compressErr error
	sampleErr   func(ts float64) error

	sampled    []float64
	compressed int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		info:       &ffmpeg.VideoInfo{Duration: 12, FPS: 25, Width: 8, Height: 8},
		boundaries: []float64{0, 3.2, 7.9},
	}
}

func (f *fakeMedia) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	return f.info, f.probeErr
}

func (f *fakeMedia) DetectShotBoundaries(ctx context.Context, videoPath, logPath string) (*ffmpeg.ShotDetection, error) {
	if err := os.WriteFile(logPath, []byte("[scdet @ 0x1] lavfi.scd.score: 31.500, lavfi.scd.time: 3.2\n"), 0644); err != nil {
		return nil, err
	}
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return &ffmpeg.ShotDetection{Boundaries: f.boundaries, LogPath: logPath}, nil
}

func (f *fakeMedia) SampleFrame(ctx context.Context, videoPath string, ts float64) (image.Image, error) {
	f.mu.Lock()
	f.sampled = append(f.sampled, ts)
	f.mu.Unlock()
	if f.sampleErr != nil {
		if err := f.sampleErr(ts); err != nil {
			return nil, err
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img, nil
}

func (f *fakeMedia) Compress(ctx context.Context, input, output string) error {
	f.mu.Lock()
	f.compressed++
	f.mu.Unlock()
	if f.compressErr != nil {
		os.WriteFile(output, []byte("partial"), 0644)
		return f.compressErr
	}
	return os.WriteFile(output, []byte("compressed-bytes"), 0644)
}

type fixedEmbedder struct{ err error }

func (e fixedEmbedder) Embed(context.Context, image.Image) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.6, 0.8}, nil
}

type selectorFunc func(b []float64, d, f float64) []float64

func (s selectorFunc) Select(b []float64, d, f float64) []float64 { return s(b, d, f) }

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Dataset.RootDir = root
	return cfg
}

func writeSource(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".mp4"), []byte("not really a video"), 0644))
}

func newTestPipeline(t *testing.T, media *fakeMedia, features ai.FeatureExtractor) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	if features == nil {
		features = &ai.Toolkit{
			Embedding: fixedEmbedder{},
			Colors:    ai.NewPixelColors(zerolog.Nop(), 3, 0),
		}
	}
	deps := Deps{Prober: media, Detector: media, Sampler: media, Compressor: media, Features: features}
	p, err := New(zerolog.Nop(), testConfig(root), deps)
	require.NoError(t, err)
	return p, root
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readReport(t *testing.T, root, id string) *report.Report {
	t.Helper()
	r, err := report.Read(filepath.Join(root, id, "video_analysis_report.json"))
	require.NoError(t, err)
	return r
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(zerolog.Nop(), config.Default(), Deps{})
	assert.Error(t, err)
	_, err = New(zerolog.Nop(), nil, Deps{})
	assert.Error(t, err)
}

func TestAnalyzeWithKeyframes(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)

	assert.Equal(t, report.StatusWithKeyframes, r.Status)
	assert.Equal(t, "00001.mp4", r.OriginalFilename)
	assert.Equal(t, "compressed_for_web.mp4", r.CompressedFilename)
	assert.Equal(t, 12.0, r.DurationSeconds)
	assert.Equal(t, 25.0, r.FPS)
	assert.Equal(t, int64(len("compressed-bytes")), r.CompressedSize)
	assert.Equal(t, []float64{0, 3.2, 7.9}, r.SceneChanges)
	require.Equal(t, 4, r.KeyframeCount)
	require.Len(t, r.Keyframes, 4)

	// the 12s boundary is clamped to the last frame
	assert.InDelta(t, 11.96, r.Keyframes[3].Timestamp, 1e-9)
	assert.InDelta(t, 11.96, media.sampled[3], 1e-9)

	first := r.Keyframes[1]
	assert.Equal(t, "00001_frame_000000003200", first.MomentID)
	assert.Equal(t, "frame_000000003200", first.FrameID)
	require.NotNil(t, first.ImagePath)
	assert.Equal(t, "00001/extracted_frames/frame_000000003200.jpeg", *first.ImagePath)
	assert.FileExists(t, filepath.Join(root, *first.ImagePath))
	assert.Equal(t, []float32{0.6, 0.8}, first.Embedding)
	assert.Equal(t, [3]int{200, 200, 200}, first.AverageColor)

	assert.Equal(t, []string{
		"00001.mp4",
		"00001_ffmpeg_shot_log.txt",
		"compressed_for_web.mp4",
		"extracted_frames",
		"video_analysis_report.json",
	}, listDir(t, filepath.Join(root, testVideo)))
	assert.Len(t, listDir(t, filepath.Join(root, testVideo, "extracted_frames")), 4)

	onDisk := readReport(t, root, testVideo)
	assert.Equal(t, r.Keyframes[1].MomentID, onDisk.Keyframes[1].MomentID)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)
	framesDir := filepath.Join(root, testVideo, "extracted_frames")

	first, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	firstFrames := listDir(t, framesDir)

	// a stale frame from some older configuration must not survive
	require.NoError(t, os.WriteFile(filepath.Join(framesDir, "frame_999999999999.jpeg"), nil, 0644))

	second, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)

	assert.Equal(t, firstFrames, listDir(t, framesDir))
	require.Len(t, second.Keyframes, len(first.Keyframes))
	for i := range first.Keyframes {
		assert.Equal(t, first.Keyframes[i].MomentID, second.Keyframes[i].MomentID)
		assert.Equal(t, first.Keyframes[i].ImagePath, second.Keyframes[i].ImagePath)
	}
	assert.Equal(t, first.SceneChanges, second.SceneChanges)
	assert.Equal(t, first.Status, second.Status)
	for _, name := range listDir(t, filepath.Join(root, testVideo)) {
		assert.False(t, strings.HasPrefix(name, "."), "leftover %s", name)
	}
}

func TestAnalyzeMissingSource(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)

	// artifacts of an earlier run are removed with the failed report
	dir := filepath.Join(root, testVideo)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extracted_frames"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compressed_for_web.mp4"), []byte("old"), 0644))

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)

	assert.Equal(t, report.StatusFailed, r.Status)
	require.NotNil(t, r.ErrorMessage)
	assert.Contains(t, *r.ErrorMessage, ErrMissingSource.Error())
	assert.Equal(t, []float64{0.0}, r.SceneChanges)
	assert.Empty(t, media.sampled)

	assert.Equal(t, []string{"video_analysis_report.json"}, listDir(t, dir))
	assert.Equal(t, report.StatusFailed, readReport(t, root, testVideo).Status)
}

func TestAnalyzeProbeFailure(t *testing.T) {
	for name, media := range map[string]*fakeMedia{
		"error":       {probeErr: errors.New("ffprobe crashed")},
		"zero values": {info: &ffmpeg.VideoInfo{}},
		"nil info":    {},
	} {
		t.Run(name, func(t *testing.T) {
			p, root := newTestPipeline(t, media, nil)
			writeSource(t, root, testVideo)

			r, err := p.Analyze(context.Background(), testVideo)
			require.NoError(t, err)
			assert.Equal(t, report.StatusFailed, r.Status)
			assert.Contains(t, *r.ErrorMessage, ErrProbe.Error())
			assert.Zero(t, r.DurationSeconds)
		})
	}
}

func TestAnalyzeDetectionFailure(t *testing.T) {
	media := newFakeMedia()
	media.detectErr = errors.New("ffmpeg could not be started")
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Status)
	assert.Contains(t, *r.ErrorMessage, "shot detection failed: ffmpeg could not be started")
	assert.FileExists(t, filepath.Join(root, testVideo, "00001_ffmpeg_shot_log.txt"))
}

func TestAnalyzeNoKeyframes(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	p.WithSelector(selectorFunc(func([]float64, float64, float64) []float64 { return nil }))
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)

	assert.Equal(t, report.StatusNoKeyframes, r.Status)
	assert.Zero(t, r.KeyframeCount)
	assert.Empty(t, r.Keyframes)
	assert.Equal(t, []float64{0, 3.2, 7.9}, r.SceneChanges)
	assert.Equal(t, 12.0, r.DurationSeconds)
	assert.Zero(t, r.CompressedSize)
	assert.Nil(t, r.ErrorMessage)
	assert.Zero(t, media.compressed)
	assert.NoFileExists(t, filepath.Join(root, testVideo, "compressed_for_web.mp4"))
}

func TestAnalyzeSelectionPanic(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	p.WithSelector(selectorFunc(func([]float64, float64, float64) []float64 { panic("index out of range") }))
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Status)
	assert.Contains(t, *r.ErrorMessage, "keyframe selection failed: index out of range")
}

func TestAnalyzePerFrameDegradation(t *testing.T) {
	media := newFakeMedia()
	media.compressErr = errors.New("libx264 missing")
	media.sampleErr = func(ts float64) error {
		if ts > 3 && ts < 4 {
			return ffmpeg.ErrNoFrame
		}
		return nil
	}
	features := &ai.Toolkit{
		Embedding: fixedEmbedder{err: errors.New("model not loaded")},
		Colors:    ai.NewPixelColors(zerolog.Nop(), 3, 0),
	}
	p, root := newTestPipeline(t, media, features)
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)

	assert.Equal(t, report.StatusWithKeyframes, r.Status)
	assert.Zero(t, r.CompressedSize)
	assert.NoFileExists(t, filepath.Join(root, testVideo, "compressed_for_web.mp4"))

	require.Len(t, r.Keyframes, 3)
	for _, m := range r.Keyframes {
		assert.NotEqual(t, "frame_000000003200", m.FrameID)
		assert.Nil(t, m.Embedding)
		assert.Empty(t, m.ObjectNames)
		assert.NotNil(t, m.ImagePath)
	}
}

func TestAnalyzeSkipsDuplicateFrames(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	// both clamp to the last frame at 11.96s
	p.WithSelector(selectorFunc(func([]float64, float64, float64) []float64 { return []float64{11.99, 12} }))
	writeSource(t, root, testVideo)

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	require.Len(t, r.Keyframes, 1)
	assert.Len(t, media.sampled, 1)
}

func TestAnalyzeCancelled(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := p.Analyze(ctx, testVideo)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Status)
	assert.Contains(t, *r.ErrorMessage, ErrInterrupted.Error())
	assert.FileExists(t, filepath.Join(root, testVideo, "video_analysis_report.json"))
}

func TestAnalyzeRemovesLeftovers(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)

	dir := filepath.Join(root, testVideo)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".staging-dead", "extracted_frames"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".trash-dead"), 0755))

	_, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, ".staging-dead"))
	assert.NoDirExists(t, filepath.Join(dir, ".trash-dead"))
}

func TestAnalyzePublishFailureWritesFallback(t *testing.T) {
	media := newFakeMedia()
	p, root := newTestPipeline(t, media, nil)
	writeSource(t, root, testVideo)

	// a regular file where the frames dir belongs makes the commit rename fail
	dir := filepath.Join(root, testVideo)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extracted_frames"), []byte("in the way"), 0644))

	r, err := p.Analyze(context.Background(), testVideo)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, report.StatusFailed, r.Status)
	require.NotNil(t, r.ErrorMessage)
	assert.True(t, strings.HasPrefix(*r.ErrorMessage, "failed to save report: "), *r.ErrorMessage)
	assert.Contains(t, *r.ErrorMessage, "extracted_frames")
	assert.Empty(t, r.Keyframes)
	assert.Equal(t, []float64{0.0}, r.SceneChanges)

	onDisk := readReport(t, root, testVideo)
	assert.Equal(t, report.StatusFailed, onDisk.Status)
	assert.Equal(t, *r.ErrorMessage, *onDisk.ErrorMessage)
	for _, name := range listDir(t, dir) {
		assert.False(t, strings.HasPrefix(name, "."), "leftover %s", name)
	}
}

func TestFail(t *testing.T) {
	p, root := newTestPipeline(t, newFakeMedia(), nil)

	r, err := p.Fail(testVideo, errors.New("fatal error during analysis: boom"))
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Status)

	onDisk := readReport(t, root, testVideo)
	assert.Equal(t, "fatal error during analysis: boom", *onDisk.ErrorMessage)
}

func TestLayout(t *testing.T) {
	cfg := testConfig("/data")
	v := NewLayout(cfg.Dataset).Video("abc")

	assert.Equal(t, filepath.Join("/data", "abc", "abc.mp4"), v.Source)
	assert.Equal(t, filepath.Join("/data", "abc", "video_analysis_report.json"), v.Report())
	assert.Equal(t, filepath.Join("/data", "abc", "abc_ffmpeg_shot_log.txt"), v.ShotLog())
	assert.Equal(t, "abc/extracted_frames/frame_000000001000.jpeg", v.FrameImage("frame_000000001000"))
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jpeg")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	require.NoError(t, saveJPEG(path, img, 95))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

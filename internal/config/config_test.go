package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "boundary", cfg.Keyframes.Strategy)
	assert.Equal(t, 0.1, cfg.Keyframes.BoundaryOffset)
	assert.Equal(t, 30.0, cfg.Keyframes.Interval)
	assert.Equal(t, 1.0, cfg.FFmpeg.SceneThreshold)
	assert.Equal(t, 10*time.Minute, cfg.FFmpeg.ShotTimeout)
	assert.Equal(t, 35, cfg.FFmpeg.CRF)
	assert.Equal(t, 1, cfg.Batch.Concurrency)
	assert.Equal(t, "00042.mp4", cfg.Dataset.SourceFilename("00042"))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset:
  root_dir: /videos
keyframes:
  strategy: middle
  interval_seconds: 5
ffmpeg:
  shot_timeout: 90s
batch:
  concurrency: 2
`), 0644))

	t.Setenv("MOMENTFORGE_CONCURRENCY", "4")
	// keep a stray .env in the working directory out of the test
	t.Chdir(dir)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/videos", cfg.Dataset.RootDir)
	assert.Equal(t, "middle", cfg.Keyframes.Strategy)
	assert.Equal(t, 5.0, cfg.Keyframes.Interval)
	assert.Equal(t, 90*time.Second, cfg.FFmpeg.ShotTimeout)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	// untouched defaults survive
	assert.Equal(t, "compressed_for_web.mp4", cfg.Dataset.CompressedFilename)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MOMENTFORGE_DATASET_ROOT=/from/dotenv\n"), 0644))
	t.Chdir(dir)
	t.Setenv("MOMENTFORGE_DATASET_ROOT", "")
	os.Unsetenv("MOMENTFORGE_DATASET_ROOT")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.Dataset.RootDir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  concurrency: 0\nffmpeg:\n  jpeg_quality: 101\n"), 0644))
	t.Chdir(dir)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency")
	assert.Contains(t, err.Error(), "jpeg_quality")
}

func TestValidateAcceptsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Keyframes.Strategy = "fancy"
	assert.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Batch.CronSchedule = "0 0 3 * * *"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 0 3 * * *", loaded.Batch.CronSchedule)
	assert.Equal(t, cfg.FFmpeg.ShotTimeout, loaded.FFmpeg.ShotTimeout)
}

func TestContext(t *testing.T) {
	cfg := Default()
	cfg.Dataset.RootDir = "/elsewhere"

	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "./dataset", FromContext(context.Background()).Dataset.RootDir)
}

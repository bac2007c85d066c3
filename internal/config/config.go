package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration. It is loaded once and passed by
// value into the batch runner and pipeline; nothing mutates it afterwards.
type Config struct {
	Dataset   DatasetConfig  `yaml:"dataset"`
	Keyframes KeyframeConfig `yaml:"keyframes"`
	FFmpeg    FFmpegConfig   `yaml:"ffmpeg"`
	Features  FeaturesConfig `yaml:"features"`
	Batch     BatchConfig    `yaml:"batch"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// DatasetConfig describes the per-video file layout under the dataset root.
type DatasetConfig struct {
	RootDir            string `yaml:"root_dir" env:"MOMENTFORGE_DATASET_ROOT"`
	SourcePattern      string `yaml:"source_pattern"`
	CompressedFilename string `yaml:"compressed_filename"`
	ReportFilename     string `yaml:"report_filename"`
	FramesSubdir       string `yaml:"frames_subdir"`
	ShotLogSuffix      string `yaml:"shot_log_suffix"`
}

type KeyframeConfig struct {
	Strategy       string  `yaml:"strategy" env:"MOMENTFORGE_KEYFRAME_STRATEGY"`
	BoundaryOffset float64 `yaml:"boundary_offset_seconds"`
	Interval       float64 `yaml:"interval_seconds" env:"MOMENTFORGE_KEYFRAME_INTERVAL"`
}

type FFmpegConfig struct {
	BinaryPath     string        `yaml:"binary_path" env:"MOMENTFORGE_FFMPEG"`
	ProbePath      string        `yaml:"probe_path" env:"MOMENTFORGE_FFPROBE"`
	Threads        int           `yaml:"threads"`
	SceneThreshold float64       `yaml:"scene_threshold"`
	ShotTimeout    time.Duration `yaml:"shot_timeout"`
	CRF            int           `yaml:"crf"`
	Preset         string        `yaml:"preset"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
}

type FeaturesConfig struct {
	MinObjectConfidence float64 `yaml:"min_object_confidence"`
	MinTextConfidence   float64 `yaml:"min_text_confidence"`
	DominantColors      int     `yaml:"dominant_colors"`
	ColorSampleSize     uint    `yaml:"color_sample_size"`

	CLIP    CLIPConfig    `yaml:"clip"`
	Objects ObjectsConfig `yaml:"objects"`
	OCR     OCRConfig     `yaml:"ocr"`
}

type CLIPConfig struct {
	ModelPath  string `yaml:"model_path" env:"MOMENTFORGE_CLIP_MODEL"`
	RuntimeLib string `yaml:"runtime_lib" env:"ONNXRUNTIME_LIB"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
	Dimensions int    `yaml:"dimensions"`
	ImageSize  uint   `yaml:"image_size"`
}

type ObjectsConfig struct {
	ModelPath  string `yaml:"model_path" env:"MOMENTFORGE_DETECTOR_MODEL"`
	ConfigPath string `yaml:"config_path" env:"MOMENTFORGE_DETECTOR_CONFIG"`
	LabelsPath string `yaml:"labels_path"`
}

type OCRConfig struct {
	BinaryPath string `yaml:"binary_path" env:"MOMENTFORGE_TESSERACT"`
	Language   string `yaml:"language"`
}

type BatchConfig struct {
	Concurrency  int    `yaml:"concurrency" env:"MOMENTFORGE_CONCURRENCY"`
	CronSchedule string `yaml:"cron_schedule"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"MOMENTFORGE_METRICS_ADDR"`
}

// Load reads configuration from file, then applies .env and environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// a missing .env is the normal case
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Dataset.RootDir == "" {
		problems = append(problems, "dataset.root_dir is required")
	}
	if !strings.Contains(c.Dataset.SourcePattern, "{id}") {
		problems = append(problems, "dataset.source_pattern must contain {id}")
	}
	if c.Keyframes.BoundaryOffset < 0 {
		problems = append(problems, "keyframes.boundary_offset_seconds must be >= 0")
	}
	if c.Keyframes.Interval < 0 {
		problems = append(problems, "keyframes.interval_seconds must be >= 0")
	}
	if c.FFmpeg.ShotTimeout <= 0 {
		problems = append(problems, "ffmpeg.shot_timeout must be positive")
	}
	if c.FFmpeg.JPEGQuality < 1 || c.FFmpeg.JPEGQuality > 100 {
		problems = append(problems, "ffmpeg.jpeg_quality must be within 1..100")
	}
	if c.Batch.Concurrency < 1 {
		problems = append(problems, "batch.concurrency must be >= 1")
	}
	if c.Features.DominantColors < 0 {
		problems = append(problems, "features.dominant_colors must be >= 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SourceFilename returns the expected source file name for a video id.
func (d DatasetConfig) SourceFilename(videoID string) string {
	return strings.ReplaceAll(d.SourcePattern, "{id}", videoID)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			RootDir:            "./dataset",
			SourcePattern:      "{id}.mp4",
			CompressedFilename: "compressed_for_web.mp4",
			ReportFilename:     "video_analysis_report.json",
			FramesSubdir:       "extracted_frames",
			ShotLogSuffix:      "_ffmpeg_shot_log.txt",
		},
		Keyframes: KeyframeConfig{
			Strategy:       "boundary",
			BoundaryOffset: 0.1,
			Interval:       30,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:     "ffmpeg",
			ProbePath:      "ffprobe",
			Threads:        0,
			SceneThreshold: 1.0,
			ShotTimeout:    10 * time.Minute,
			CRF:            35,
			Preset:         "medium",
			JPEGQuality:    95,
		},
		Features: FeaturesConfig{
			MinObjectConfidence: 0.5,
			MinTextConfidence:   0.3,
			DominantColors:      10,
			ColorSampleSize:     512,
			CLIP: CLIPConfig{
				InputName:  "pixel_values",
				OutputName: "image_embeds",
				Dimensions: 768,
				ImageSize:  224,
			},
			OCR: OCRConfig{
				Language: "eng",
			},
		},
		Batch: BatchConfig{
			Concurrency: 1,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".momentforge", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}

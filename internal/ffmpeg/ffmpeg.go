package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/logging"
)

// waitDelay bounds how long Wait blocks on output pipes after the process is
// killed by context cancellation.
const waitDelay = 5 * time.Second

// Executor handles all ffmpeg operations with output streaming
type Executor struct {
	logger         zerolog.Logger
	ffmpegPath     string
	ffprobePath    string
	threads        int
	sceneThreshold float64
	shotTimeout    time.Duration
	crf            int
	preset         string
}

// New creates a new ffmpeg executor. Binary paths may be bare names resolved
// through PATH or absolute paths.
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := exec.LookPath(opts.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	e := &Executor{
		logger:         logging.WithComponent(logger, "ffmpeg"),
		ffmpegPath:     ffmpegPath,
		ffprobePath:    ffprobePath,
		threads:        opts.Threads,
		sceneThreshold: opts.SceneThreshold,
		shotTimeout:    opts.ShotTimeout,
		crf:            opts.CRF,
		preset:         opts.Preset,
	}
	if e.sceneThreshold <= 0 {
		e.sceneThreshold = DefaultSceneThreshold
	}
	if e.shotTimeout <= 0 {
		e.shotTimeout = DefaultShotTimeout
	}
	if e.crf <= 0 {
		e.crf = DefaultCRF
	}
	if e.preset == "" {
		e.preset = DefaultPreset
	}
	return e, nil
}

// Run executes ffmpeg with the given arguments and streams its output to the
// handlers. A cancelled or expired ctx kills the process.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// threads must precede the inputs
	baseArgs := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "info"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	if opts.ProgressHandler != nil {
		baseArgs = append(baseArgs, "-progress", "pipe:2")
	}
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	var stdout io.ReadCloser
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to create stdout pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, opts.LogHandler)
	}()

	if stdout != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner := newLineScanner(stdout)
			for scanner.Scan() {
				if opts.LogHandler != nil {
					opts.LogHandler(scanner.Text())
				}
			}
		}()
	}

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return scanner
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := newLineScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		if logHandler != nil {
			logHandler(line)
		}
		if progressHandler == nil {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			fmt.Sscanf(value, "%d", &progressData.Frame)
		case "fps":
			fmt.Sscanf(value, "%f", &progressData.FPS)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time":
			progressData.Time = value
		case "speed":
			progressData.Speed = value
		case "progress":
			// end of a progress block
			if progressData.Frame > 0 {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}
	// drain so the process never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

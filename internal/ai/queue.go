package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/logging"
)

// ErrQueueClosed is returned for work submitted after Close.
var ErrQueueClosed = errors.New("inference queue closed")

type work struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Queue runs inference calls one at a time on a single goroutine, so a model
// instance is never entered concurrently no matter how many videos are
// processed in parallel.
type Queue struct {
	logger zerolog.Logger
	jobs   chan work
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts the dispatch goroutine. size is the submission buffer.
func NewQueue(logger zerolog.Logger, size int) *Queue {
	if size <= 0 {
		size = 16
	}
	q := &Queue{
		logger: logging.WithComponent(logger, "inference-queue"),
		jobs:   make(chan work, size),
		done:   make(chan struct{}),
	}

	q.wg.Add(1)
	go q.dispatch()
	return q
}

func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		select {
		case w := <-q.jobs:
			q.run(w)
		case <-q.done:
			// fail whatever is still buffered
			for {
				select {
				case w := <-q.jobs:
					w.result <- ErrQueueClosed
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(w work) {
	if err := w.ctx.Err(); err != nil {
		w.result <- err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("inference call panicked")
			w.result <- fmt.Errorf("inference panic: %v", r)
		}
	}()
	w.result <- w.fn(w.ctx)
}

// Do submits fn and waits for its result. ctx bounds the wait for a free
// slot and is handed to fn, which is expected to honour it.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	w := work{ctx: ctx, fn: fn, result: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- w:
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	return <-w.result
}

// Close stops the dispatcher after the call in flight returns. Work still
// buffered fails with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Serialize routes the model-backed capabilities of fe through q. Color
// statistics are pure Go and run inline on the caller's goroutine.
func Serialize(q *Queue, fe FeatureExtractor) FeatureExtractor {
	return &queued{q: q, inner: fe}
}

type queued struct {
	q     *Queue
	inner FeatureExtractor
}

func (s *queued) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	var out []float32
	err := s.q.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Embed(ctx, img)
		return err
	})
	return out, err
}

func (s *queued) DetectObjects(ctx context.Context, img image.Image) ([]Object, error) {
	var out []Object
	err := s.q.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.DetectObjects(ctx, img)
		return err
	})
	return out, err
}

func (s *queued) ExtractText(ctx context.Context, img image.Image) ([]TextRegion, error) {
	var out []TextRegion
	err := s.q.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.ExtractText(ctx, img)
		return err
	})
	return out, err
}

func (s *queued) ColorStats(ctx context.Context, img image.Image) ([]ColorShare, [3]int, error) {
	return s.inner.ColorStats(ctx, img)
}

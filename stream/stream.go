// Package stream turns polled progress records into server-sent events.
package stream

import (
	"context"
	"errors"
	"time"

	"product-importer/progress"

	"go.uber.org/zap"
)

// Event names sent to the client.
const (
	EventProgress = "progress"
	EventError    = "error"
	EventComplete = "complete"
)

const (
	DefaultPollInterval = 300 * time.Millisecond
	DefaultMaxMisses    = 5
)

// EmitFunc sends one event. It returns false once the client is gone.
type EmitFunc func(event string, data any) bool

// Streamer polls the progress store for one task at a time.
type Streamer struct {
	store     progress.Store
	interval  time.Duration
	maxMisses int
	logger    *zap.Logger
}

func NewStreamer(store progress.Store, interval time.Duration, maxMisses int, logger *zap.Logger) *Streamer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxMisses <= 0 {
		maxMisses = DefaultMaxMisses
	}
	return &Streamer{store: store, interval: interval, maxMisses: maxMisses, logger: logger}
}

// Run emits progress whenever the value changes, complete once the job is terminal, and
// error after maxMisses consecutive polls without a record. It returns when any of those
// ends the stream or when ctx is cancelled. Cancellation stops delivery only; the job
// itself is unaffected.
func (s *Streamer) Run(ctx context.Context, taskID string, emit EmitFunc) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastProgress := -1
	misses := 0
	for {
		rec, err := s.store.Get(ctx, taskID)
		switch {
		case err != nil:
			if !errors.Is(err, progress.ErrNotFound) && ctx.Err() == nil {
				s.logger.Warn("progress poll failed", zap.String("task_id", taskID), zap.Error(err))
			}
			misses++
			if misses >= s.maxMisses {
				emit(EventError, map[string]string{"error": "Task not found"})
				return
			}
		default:
			misses = 0
			if rec.Progress != lastProgress {
				lastProgress = rec.Progress
				if !emit(EventProgress, rec) {
					return
				}
			}
			if rec.IsTerminal() {
				emit(EventComplete, rec)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

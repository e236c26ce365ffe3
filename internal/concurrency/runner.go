// Package concurrency runs slices of independent tasks with a bounded number
// in flight.
package concurrency

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Result pairs a task's value with its error.
type Result[T any] struct {
	Value T
	Err   error
}

type options struct {
	logger *zap.Logger
	label  string
	level  zapcore.Level
}

// Option tunes a run.
type Option func(*options)

// WithProgress logs "<label>: <n>/<total>" at level as each task finishes,
// where n is the task's position in the submitted slice.
func WithProgress(logger *zap.Logger, label string, level zapcore.Level) Option {
	return func(o *options) {
		o.logger = logger
		o.label = label
		o.level = level
	}
}

func (o *options) report(index, total int) {
	if o.logger == nil {
		return
	}
	o.logger.Log(o.level, fmt.Sprintf("%s: %d/%d", o.label, index+1, total))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}

// Run executes tasks with at most limit running at once and returns their
// values in submission order. The first error cancels the context handed to
// the other tasks, no further tasks are started, and Run returns that error
// once the tasks already running have returned.
func Run[T any](ctx context.Context, limit int, tasks []Task[T], opts ...Option) ([]T, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	results := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(normalizeLimit(limit))
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Go may have blocked for a slot while another task failed.
			if gctx.Err() != nil {
				return nil
			}
			value, err := task(gctx)
			o.report(i, len(tasks))
			if err != nil {
				return err
			}
			results[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	return results, nil
}

// RunAll executes every task with at most limit running at once and returns
// one Result per task in submission order. A failing task does not affect the
// others. Tasks that could not start because ctx ended carry ctx's error.
func RunAll[T any](ctx context.Context, limit int, tasks []Task[T], opts ...Option) []Result[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	results := make([]Result[T], len(tasks))
	var g errgroup.Group
	g.SetLimit(normalizeLimit(limit))
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			value, err := task(ctx)
			results[i] = Result[T]{Value: value, Err: err}
			o.report(i, len(tasks))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

package lod

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// worker runs an iteration function in a background goroutine until stopped.
type worker struct {
	name    string
	iterate func(context.Context) error

	mutex   sync.Mutex
	running atomic.Bool
	cancel  func()
	done    chan struct{}
}

func (w *worker) start(ctx context.Context) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running.Store(true)

	go func(done chan struct{}) {
		defer close(done)

		for w.running.Load() && ctx.Err() == nil {
			w.runIteration(ctx)
		}
	}(w.done)

	logs.WithTag("worker", w.name).Debug("worker started")
}

// stop stops the worker and waits for its current iteration to return. It
// returns false when the worker did not stop within the given timeout.
func (w *worker) stop(timeout time.Duration) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.running.Load() {
		return true
	}

	w.running.Store(false)
	w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		logs.WithTag("worker", w.name).Debug("worker stopped")
		return true

	case <-timer.C:
		logs.Warn(errors.New("worker did not stop in time").
			WithTag("worker", w.name).
			WithTag("timeout", timeout))
		return false
	}
}

func (w *worker) runIteration(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			instrumentWorkerError(w.name)
			logs.Error(errors.New("worker iteration panicked").
				WithTag("worker", w.name).
				WithTag("panic", fmt.Sprint(r)))
		}
	}()

	err := w.iterate(ctx)
	if err != nil && ctx.Err() == nil {
		instrumentWorkerError(w.name)
		logs.Error(errors.New("worker iteration failed").
			WithTag("worker", w.name).
			Wrap(err))
	}
}

package lod

import (
	"context"
	"sync"
)

// event is a resettable gate. Waiters are released while the event is set.
type event struct {
	mutex sync.Mutex
	ch    chan struct{}
	set   bool
}

func newEvent(set bool) *event {
	e := &event{
		ch: make(chan struct{}),
	}
	if set {
		e.Set()
	}
	return e
}

func (e *event) Set() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.set {
		return
	}
	e.set = true
	close(e.ch)
}

func (e *event) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.set {
		return
	}
	e.set = false
	e.ch = make(chan struct{})
}

func (e *event) IsSet() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.set
}

// Done returns a channel closed when the event is set.
func (e *event) Done() <-chan struct{} {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.ch
}

// Wait blocks until the event is set or the context is done.
func (e *event) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.Done():
		return nil
	}
}

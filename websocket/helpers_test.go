package websocket

import (
	"sync"
	"time"

	"github.com/aukilabs/lodtree/featureflag"
	"github.com/aukilabs/lodtree/lod"
)

// testTree is a frontier source whose batches are applied manually.
type testTree struct {
	mutex     sync.Mutex
	frontier  []lod.FrontierEntry
	callbacks map[int]func(lod.BatchReport)
	nextID    int
}

func newTestTree(frontier ...lod.FrontierEntry) *testTree {
	return &testTree{
		frontier:  frontier,
		callbacks: make(map[int]func(lod.BatchReport)),
	}
}

func (t *testTree) UUID() string {
	return "test-tree"
}

func (t *testTree) Frontier() []lod.FrontierEntry {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return append([]lod.FrontierEntry(nil), t.frontier...)
}

func (t *testTree) OnBatchApplied(h func(lod.BatchReport)) func() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.nextID++
	id := t.nextID
	t.callbacks[id] = h

	return func() {
		t.mutex.Lock()
		defer t.mutex.Unlock()

		delete(t.callbacks, id)
	}
}

func (t *testTree) subscribers() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return len(t.callbacks)
}

func (t *testTree) apply(r lod.BatchReport) {
	t.mutex.Lock()
	callbacks := make([]func(lod.BatchReport), 0, len(t.callbacks))
	for _, h := range t.callbacks {
		callbacks = append(callbacks, h)
	}
	t.mutex.Unlock()

	for _, h := range callbacks {
		h(r)
	}
}

func newTestHandler(tree FrontierSource, flags ...string) func() Handler {
	return func() Handler {
		var h Handler = &FrontierHandler{
			Tree:                    tree,
			ClientSyncClockInterval: time.Minute,
			ClientIdleTimeout:       time.Minute,
			FeatureFlags:            featureflag.New(flags),
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "http://localhost:4000")
		return h
	}
}

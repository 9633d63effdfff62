package lod

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

func (t *Tree) incSummary(name string) {
	t.addSummary(name, 1)
}

func (t *Tree) addSummary(name string, n int) {
	t.summaryMutex.Lock()
	defer t.summaryMutex.Unlock()

	t.summary[name] += n
}

func (t *Tree) startSummaryWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.summaryMutex.Lock()
	t.summaryCancel = cancel
	t.summaryDone = done
	t.summaryMutex.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(t.config.LogSummaryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				t.logSummary()
			}
		}
	}()
}

func (t *Tree) stopSummaryWorker() {
	t.summaryMutex.Lock()
	cancel := t.summaryCancel
	done := t.summaryDone
	t.summaryMutex.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	t.logSummary()
}

func (t *Tree) logSummary() {
	t.summaryMutex.Lock()
	defer t.summaryMutex.Unlock()

	if len(t.summary) == 0 {
		return
	}

	entry := logs.WithTag("tree_uuid", t.uuid).
		WithTag("node_count", t.NodeCount()).
		WithTag("time_interval", t.config.LogSummaryInterval)

	for k, v := range t.summary {
		entry = entry.WithTag(k, v)
		delete(t.summary, k)
	}

	entry.Info("quadtree summary")
}

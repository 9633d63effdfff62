package lod

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	decisionWorkerName = "decision"
)

// DecisionWorker traverses the tree in the background and requests the splits
// and merges required by the camera distance. A new traversal starts only once
// the tree applied every request of the previous one.
type DecisionWorker struct {
	worker

	tree     *Tree
	interval time.Duration
	last     time.Time
}

func newDecisionWorker(t *Tree) *DecisionWorker {
	w := &DecisionWorker{
		tree:     t,
		interval: t.config.DecisionInterval,
	}
	w.worker = worker{
		name:    decisionWorkerName,
		iterate: w.iterate,
	}
	return w
}

func (w *DecisionWorker) Start(ctx context.Context) {
	w.start(ctx)
}

// Stop stops the worker. It returns false when the worker did not stop within
// the given timeout.
func (w *DecisionWorker) Stop(timeout time.Duration) bool {
	return w.stop(timeout)
}

func (w *DecisionWorker) iterate(ctx context.Context) error {
	if err := w.tree.quiescent.Wait(ctx); err != nil {
		return err
	}

	if w.interval > 0 && !w.last.IsZero() {
		if wait := w.interval - time.Since(w.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	w.last = time.Now()
	defer w.tree.decisionsReady()

	w.cycle(ctx)
	return nil
}

type decisionStats struct {
	visited int
	splits  int
	merges  int
	reloads int

	// Pending splits no longer wanted, sent through the merge queue.
	abandons int
}

func (w *DecisionWorker) cycle(ctx context.Context) decisionStats {
	start := time.Now()
	camera := w.tree.CameraSnapshot()

	_, span := w.tree.tracer.Start(ctx, "lod.DecisionWorker.Cycle",
		trace.WithAttributes(
			attribute.String("tree_uuid", w.tree.uuid),
		),
	)
	defer span.End()

	stats := w.walk(camera)

	span.SetAttributes(
		attribute.Int("visited", stats.visited),
		attribute.Int("splits", stats.splits),
		attribute.Int("merges", stats.merges),
		attribute.Int("reloads", stats.reloads),
		attribute.Int("abandons", stats.abandons),
	)
	instrumentCycle(decisionWorkerName, start)
	return stats
}

func (w *DecisionWorker) walk(camera r3.Vector) decisionStats {
	var stats decisionStats

	w.tree.mutex.RLock()
	defer w.tree.mutex.RUnlock()

	for _, id := range w.tree.roots {
		if n, ok := w.tree.nodes.get(id); ok {
			w.visit(n, camera, &stats)
		}
	}
	return stats
}

// visit must be called with the tree mutex locked for reading.
func (w *DecisionWorker) visit(n *node, camera r3.Vector, stats *decisionStats) {
	t := w.tree
	stats.visited++

	if n.visible {
		if n.patch.State == PatchUnmaterialized && t.reloadQueue.Push(n.id) {
			stats.reloads++
		}

		switch {
		case n.depth < t.config.MaxDepth && camera.Distance(n.position) < t.thresholds.Split[n.depth]:
			if t.splitQueue.Push(n.id) {
				stats.splits++
			}

		case n.splitPending:
			// The camera moved away before the children were all materialized.
			if t.mergeQueue.Push(n.id) {
				stats.abandons++
			}
		}
		return
	}

	if !n.hasChildren {
		return
	}

	mergeable := true
	for _, id := range n.children {
		c, ok := t.nodes.get(id)
		if !ok {
			return
		}

		w.visit(c, camera, stats)

		if !c.visible || camera.Distance(c.position) <= t.thresholds.Merge[c.depth] {
			mergeable = false
		}
	}

	if mergeable && t.mergeQueue.Push(n.id) {
		stats.merges++
	}
}

// decisionsReady hands the enqueued requests over to Tick. The quiescent event
// is reset first so that Tick cannot set it before the batch is marked ready.
func (t *Tree) decisionsReady() {
	t.quiescent.Reset()
	t.batchReady.Store(true)
}

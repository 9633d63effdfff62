package lod

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	cullWorkerName = "cull"
)

// CullWorker looks for subtrees hidden below the frontier when the scene
// exceeds the node budget, and requests their removal.
type CullWorker struct {
	worker

	tree *Tree
}

func newCullWorker(t *Tree) *CullWorker {
	w := &CullWorker{
		tree: t,
	}
	w.worker = worker{
		name:    cullWorkerName,
		iterate: w.iterate,
	}
	return w
}

func (w *CullWorker) Start(ctx context.Context) {
	w.start(ctx)
}

// Stop stops the worker. It returns false when the worker did not stop within
// the given timeout.
func (w *CullWorker) Stop(timeout time.Duration) bool {
	return w.stop(timeout)
}

func (w *CullWorker) iterate(ctx context.Context) error {
	if err := w.tree.cullWanted.Wait(ctx); err != nil {
		return err
	}
	w.tree.cullWanted.Reset()

	w.cycle(ctx)
	return nil
}

func (w *CullWorker) cycle(ctx context.Context) int {
	start := time.Now()

	_, span := w.tree.tracer.Start(ctx, "lod.CullWorker.Cycle",
		trace.WithAttributes(
			attribute.String("tree_uuid", w.tree.uuid),
			attribute.Int64("node_count", w.tree.nodeCount.Load()),
		),
	)
	defer span.End()

	requests := w.walk()

	span.SetAttributes(attribute.Int("requests", requests))
	instrumentCycle(cullWorkerName, start)
	return requests
}

func (w *CullWorker) walk() int {
	w.tree.mutex.RLock()
	defer w.tree.mutex.RUnlock()

	var requests int
	for _, id := range w.tree.roots {
		if n, ok := w.tree.nodes.get(id); ok {
			requests += w.visit(n)
		}
	}
	return requests
}

// visit must be called with the tree mutex locked for reading. Frontier nodes
// and their ancestors are kept: only what lies below a frontier node is
// removable. Children of a pending split are about to become the frontier and
// are kept too.
func (w *CullWorker) visit(n *node) int {
	t := w.tree

	if n.visible {
		if n.hasChildren && !n.splitPending && t.cullQueue.Push(n.id) {
			return 1
		}
		return 0
	}

	if !n.hasChildren {
		return 0
	}

	var requests int
	for _, id := range n.children {
		if c, ok := t.nodes.get(id); ok {
			requests += w.visit(c)
		}
	}
	return requests
}

package lod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/tiles"
)

// Every function in this file must be called with the tree mutex locked for
// writing.

func (t *Tree) newNode(depth, row, col int, parent NodeID) *node {
	bounds := geo.TileBounds(t.config.Projection, row, col, depth)

	n := &node{
		parent:   parent,
		depth:    depth,
		row:      row,
		col:      col,
		position: t.config.Ellipsoid.Cartesian(bounds.CenterLat, bounds.CenterLon, 0),
		patch: Patch{
			Key: tiles.Key{
				Zoom:  depth,
				Row:   row,
				Col:   col,
				Layer: t.config.Layer,
			},
			Bounds:     bounds,
			Triangular: bounds.TouchesPole(),
		},
	}

	t.nodes.alloc(n)
	return n
}

func (t *Tree) createChildren(n *node) {
	for i := range n.children {
		row, col := geo.ChildCoordinates(n.row, n.col, i)
		child := t.newNode(n.depth+1, row, col, n.id)
		n.children[i] = child.id
	}
	n.hasChildren = true
}

func (t *Tree) child(n *node, i int) *node {
	c, ok := t.nodes.get(n.children[i])
	if !ok {
		// Children are only released with their parent subtree.
		panic(errors.New("child node is missing").
			WithTag("parent", n.id.String()).
			WithTag("child", n.children[i].String()))
	}
	return c
}

func (t *Tree) setVisible(n *node, visible bool) {
	n.visible = visible
	if n.patch.State == PatchMaterialized {
		t.scene.SetVisible(n.patch.Handle, visible)
	}
}

// applySplit shows the children of a frontier node, creating and
// materializing them when needed. The node stays visible until all its
// children are materialized.
func (t *Tree) applySplit(id NodeID) {
	n, ok := t.nodes.get(id)
	if !ok || !n.visible || n.depth >= t.config.MaxDepth {
		t.discardStale(splitQueueName, id)
		return
	}

	if !n.hasChildren {
		t.createChildren(n)
	}

	if n.patch.State == PatchUnmaterialized {
		t.requestMaterialization(n)
	}

	var pending bool
	for i := range n.children {
		c := t.child(n, i)

		switch c.patch.State {
		case PatchUnmaterialized:
			t.requestMaterialization(c)
			pending = true

		case PatchPending:
			pending = true
		}
	}

	if pending {
		n.splitPending = true
		return
	}

	t.showChildren(n)
}

func (t *Tree) showChildren(n *node) {
	t.setVisible(n, false)
	n.splitPending = false

	for i := range n.children {
		t.setVisible(t.child(n, i), true)
	}

	t.incSummary("splits")
	instrumentOperation("split")
}

// applyMerge shows a node and hides its children. Children keep their
// geometry so a later split is a visibility toggle. A merge request on a node
// whose split is still pending abandons the split.
func (t *Tree) applyMerge(id NodeID) {
	n, ok := t.nodes.get(id)
	if ok && n.visible && n.splitPending {
		t.abandonSplit(n)
		return
	}
	if !ok || n.visible || !n.hasChildren {
		t.discardStale(mergeQueueName, id)
		return
	}

	for i := range n.children {
		if !t.child(n, i).visible {
			t.discardStale(mergeQueueName, id)
			return
		}
	}

	if n.patch.State != PatchMaterialized {
		// Merged on a later cycle, once the parent patch is displayable.
		if n.patch.State == PatchUnmaterialized {
			t.requestMaterialization(n)
		}
		return
	}

	t.setVisible(n, true)
	for i := range n.children {
		c := t.child(n, i)
		t.setVisible(c, false)
		c.splitPending = false
	}

	t.incSummary("merges")
	instrumentOperation("merge")
}

// abandonSplit keeps a node as the frontier. Its hidden children become
// cullable and late materializations no longer show them.
func (t *Tree) abandonSplit(n *node) {
	n.splitPending = false

	t.incSummary("abandoned_splits")
	instrumentOperation("abandon_split")

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("node", n.patch.Key.String()).
		Debug("pending split abandoned")
}

// applyReload requests the materialization of a frontier patch that failed
// earlier.
func (t *Tree) applyReload(id NodeID) {
	n, ok := t.nodes.get(id)
	if !ok || n.patch.State != PatchUnmaterialized {
		t.discardStale(reloadQueueName, id)
		return
	}

	t.requestMaterialization(n)
}

// applyCull removes every descendant of a frontier node.
func (t *Tree) applyCull(id NodeID) {
	n, ok := t.nodes.get(id)
	if !ok || !n.visible || !n.hasChildren || n.splitPending {
		t.discardStale(cullQueueName, id)
		return
	}

	var removed int
	for i := range n.children {
		removed += t.removeSubtree(n.children[i])
	}

	n.children = [4]NodeID{}
	n.hasChildren = false
	n.splitPending = false

	t.addSummary("culled", removed)
	instrumentOperation("cull")

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("node", n.patch.Key.String()).
		WithTag("removed", removed).
		Debug("subtree culled")
}

func (t *Tree) removeSubtree(id NodeID) int {
	n, ok := t.nodes.get(id)
	if !ok {
		return 0
	}

	var removed int
	if n.hasChildren {
		for _, c := range n.children {
			removed += t.removeSubtree(c)
		}
	}

	if n.patch.State == PatchMaterialized {
		t.scene.Detach(n.patch.Handle)
	}

	t.nodes.release(id)
	return removed + 1
}

func (t *Tree) requestMaterialization(n *node) {
	n.patch.State = PatchPending
	t.materializer.Request(n.id, n.patch.Key, n.patch.Bounds)
}

func (t *Tree) applyMaterializations() {
	for i := 0; i < t.config.MaxMaterializationsPerFrame; i++ {
		select {
		case res := <-t.materializer.Results():
			t.applyMaterialization(res)

		default:
			return
		}
	}
}

func (t *Tree) applyMaterialization(res materialization) {
	n, ok := t.nodes.get(res.id)
	if !ok || n.patch.State != PatchPending {
		t.discardStale("materialization", res.id)
		return
	}

	if res.err != nil {
		t.failMaterialization(n, res.err)
		return
	}

	handle, err := t.scene.Attach(n.patch.Key, res.mesh, res.imagery)
	if err != nil {
		t.failMaterialization(n, errors.New("attaching patch to scene failed").
			WithType(ErrTypeScene).
			WithTag("tile", n.patch.Key.String()).
			Wrap(err))
		return
	}

	n.patch.State = PatchMaterialized
	n.patch.Mesh = res.mesh
	n.patch.Imagery = res.imagery
	n.patch.Handle = handle
	t.scene.SetVisible(handle, n.visible)

	if parent, ok := t.nodes.get(n.parent); ok && parent.splitPending && parent.visible {
		t.completePendingSplit(parent)
	}
}

func (t *Tree) completePendingSplit(n *node) {
	for i := range n.children {
		if t.child(n, i).patch.State != PatchMaterialized {
			return
		}
	}
	t.showChildren(n)
}

func (t *Tree) failMaterialization(n *node, err error) {
	n.patch.State = PatchUnmaterialized
	n.patch.Failures++
	t.incSummary("failures")

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("failures", n.patch.Failures).
		Warn(err)
}

func (t *Tree) discardStale(queue string, id NodeID) {
	instrumentStaleRequest(queue)

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("queue", queue).
		WithTag("node", id.String()).
		Debug("stale request discarded")
}

func (t *Tree) visibleCount() int {
	var count int
	for _, id := range t.roots {
		count += t.countVisible(id)
	}
	return count
}

func (t *Tree) countVisible(id NodeID) int {
	n, ok := t.nodes.get(id)
	if !ok {
		return 0
	}
	if n.visible {
		return 1
	}
	if !n.hasChildren {
		return 0
	}

	var count int
	for _, c := range n.children {
		count += t.countVisible(c)
	}
	return count
}

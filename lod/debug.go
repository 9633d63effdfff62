package lod

import (
	"github.com/aukilabs/lodtree/tiles"
	"github.com/golang/geo/r3"
)

// FrontierEntry describes a node of the visible frontier.
type FrontierEntry struct {
	ID           NodeID    `json:"id"`
	Key          tiles.Key `json:"key"`
	Quadkey      string    `json:"quadkey"`
	Position     r3.Vector `json:"position"`
	Triangular   bool      `json:"triangular"`
	Materialized bool      `json:"materialized"`
	SortOffset   float64   `json:"sort_offset"`
}

// Frontier returns the nodes currently selected for display, depth first from
// the roots.
func (t *Tree) Frontier() []FrontierEntry {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var entries []FrontierEntry
	for _, id := range t.roots {
		entries = t.appendFrontier(entries, id)
	}
	return entries
}

func (t *Tree) appendFrontier(entries []FrontierEntry, id NodeID) []FrontierEntry {
	n, ok := t.nodes.get(id)
	if !ok {
		return entries
	}

	if n.visible {
		quadkey, _ := n.patch.Key.Quadkey()

		return append(entries, FrontierEntry{
			ID:           n.id,
			Key:          n.patch.Key,
			Quadkey:      quadkey,
			Position:     n.position,
			Triangular:   n.patch.Triangular,
			Materialized: n.patch.State == PatchMaterialized,
			SortOffset:   SortOffset(n.depth),
		})
	}

	if n.hasChildren {
		for _, c := range n.children {
			entries = t.appendFrontier(entries, c)
		}
	}
	return entries
}

// DebugInfo is a snapshot of the tree state.
type DebugInfo struct {
	TreeUUID    string    `json:"tree_uuid"`
	Initialized bool      `json:"initialized"`
	MinDepth    int       `json:"min_depth"`
	MaxDepth    int       `json:"max_depth"`
	MaxNodes    int       `json:"max_nodes"`
	NodeCount   int       `json:"node_count"`
	LiveNodes   int       `json:"live_nodes"`
	Roots       int       `json:"roots"`
	Visible     int       `json:"visible"`
	Pending     int       `json:"pending"`
	Failed      int       `json:"failed"`
	Camera      r3.Vector `json:"camera"`
	CameraZoom  int       `json:"camera_zoom"`

	// Number of live nodes and visible nodes, indexed by depth.
	Occupancy      []uint32 `json:"occupancy"`
	VisibleByDepth []uint32 `json:"visible_by_depth"`

	Queues QueueLengths `json:"queues"`
}

type QueueLengths struct {
	Split  int `json:"split"`
	Merge  int `json:"merge"`
	Reload int `json:"reload"`
	Cull   int `json:"cull"`
}

// DebugInfo returns a snapshot of the tree state.
func (t *Tree) DebugInfo() DebugInfo {
	camera := t.CameraSnapshot()

	info := DebugInfo{
		TreeUUID:       t.uuid,
		Initialized:    t.initialized.Load(),
		MinDepth:       t.config.MinDepth,
		MaxDepth:       t.config.MaxDepth,
		MaxNodes:       t.config.MaxNodes,
		NodeCount:      t.NodeCount(),
		Camera:         camera,
		CameraZoom:     t.thresholds.ZoomForDistance(t.cameraAltitude(camera)),
		Occupancy:      make([]uint32, t.config.MaxDepth+1),
		VisibleByDepth: make([]uint32, t.config.MaxDepth+1),
		Queues: QueueLengths{
			Split:  t.splitQueue.Len(),
			Merge:  t.mergeQueue.Len(),
			Reload: t.reloadQueue.Len(),
			Cull:   t.cullQueue.Len(),
		},
	}

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	info.LiveNodes = t.nodes.len()
	info.Roots = len(t.roots)

	for _, s := range t.nodes.slots {
		n := s.node
		if n == nil {
			continue
		}

		info.Occupancy[n.depth]++
		if n.visible {
			info.Visible++
			info.VisibleByDepth[n.depth]++
		}

		switch {
		case n.patch.State == PatchPending:
			info.Pending++
		case n.patch.State == PatchUnmaterialized && n.patch.Failures > 0:
			info.Failed++
		}
	}

	return info
}

// cameraAltitude returns the height of the camera above the ellipsoid.
func (t *Tree) cameraAltitude(camera r3.Vector) float64 {
	_, _, alt := t.config.Ellipsoid.Geodetic(camera)
	return alt
}

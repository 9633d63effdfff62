package lod

import (
	"fmt"

	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/tiles"
	"github.com/golang/geo/r3"
)

// NodeID addresses a node in the tree arena. An id becomes stale as soon as
// its node is removed, even if the slot is reused later.
type NodeID struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

// IsZero reports whether the id does not address any node.
func (id NodeID) IsZero() bool {
	return id.Generation == 0
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d", id.Index, id.Generation)
}

// PatchState is the materialization state of a patch.
type PatchState int

const (
	PatchUnmaterialized PatchState = iota
	PatchPending
	PatchMaterialized
)

func (s PatchState) String() string {
	switch s {
	case PatchPending:
		return "pending"
	case PatchMaterialized:
		return "materialized"
	default:
		return "unmaterialized"
	}
}

// Patch is the terrain payload of a node.
type Patch struct {
	Key        tiles.Key
	Bounds     geo.Bounds
	Triangular bool
	State      PatchState

	Mesh    *mesh.Mesh
	Imagery []byte

	// The scene handle. Only valid when materialized.
	Handle uint32

	// The number of failed materializations.
	Failures int
}

type node struct {
	id     NodeID
	parent NodeID

	// Either all zero or all valid.
	children    [4]NodeID
	hasChildren bool

	depth    int
	row      int
	col      int
	position r3.Vector

	// Whether the node belongs to the visible frontier.
	visible bool

	// Set while the children of a visible node are materializing. The
	// children are shown once they are all materialized.
	splitPending bool

	patch Patch
}

type slot struct {
	generation uint32
	node       *node
}

// arena stores the nodes of a tree. Removing a node bumps the generation of
// its slot, so lookups with a stale id fail.
type arena struct {
	slots []slot
	free  []uint32
	live  int
}

func (a *arena) alloc(n *node) NodeID {
	var index uint32

	if l := len(a.free); l != 0 {
		index = a.free[l-1]
		a.free = a.free[:l-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot{generation: 1})
	}

	s := &a.slots[index]
	s.node = n
	n.id = NodeID{
		Index:      index,
		Generation: s.generation,
	}

	a.live++
	return n.id
}

func (a *arena) get(id NodeID) (*node, bool) {
	if id.IsZero() || int(id.Index) >= len(a.slots) {
		return nil, false
	}

	s := a.slots[id.Index]
	if s.generation != id.Generation || s.node == nil {
		return nil, false
	}
	return s.node, true
}

func (a *arena) release(id NodeID) bool {
	if _, ok := a.get(id); !ok {
		return false
	}

	s := &a.slots[id.Index]
	s.node = nil
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}

	a.free = append(a.free, id.Index)
	a.live--
	return true
}

func (a *arena) len() int {
	return a.live
}

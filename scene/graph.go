package scene

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/tiles"
)

const (
	ErrTypeNilMesh = "nil_mesh"
)

// Node is a terrain patch attached to the scene.
type Node struct {
	Handle     uint32     `json:"handle"`
	Key        tiles.Key  `json:"key"`
	Mesh       *mesh.Mesh `json:"-"`
	Imagery    []byte     `json:"-"`
	Visible    bool       `json:"visible"`
	AttachedAt time.Time  `json:"attached_at"`
}

// Graph is an in-memory scene graph holding the attached terrain patches.
// It is safe for concurrent use.
type Graph struct {
	mutex   sync.RWMutex
	handles handleGenerator
	nodes   map[uint32]*Node
	visible int
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[uint32]*Node),
	}
}

// Attach adds a hidden patch to the scene and returns its handle.
func (g *Graph) Attach(k tiles.Key, m *mesh.Mesh, imagery []byte) (uint32, error) {
	if m == nil {
		return 0, errors.New("attaching a patch without mesh").
			WithType(ErrTypeNilMesh).
			WithTag("tile", k.String())
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	h := g.handles.New()
	g.nodes[h] = &Node{
		Handle:     h,
		Key:        k,
		Mesh:       m,
		Imagery:    imagery,
		AttachedAt: time.Now(),
	}

	sceneAttachedNodes.Inc()
	sceneAttachments.Inc()
	return h, nil
}

// Detach removes a patch from the scene. Unknown handles are ignored.
func (g *Graph) Detach(h uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[h]
	if !ok {
		return
	}

	if n.Visible {
		g.visible--
		sceneVisibleNodes.Dec()
	}

	delete(g.nodes, h)
	g.handles.Reuse(h)
	sceneAttachedNodes.Dec()
}

func (g *Graph) SetVisible(h uint32, visible bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[h]
	if !ok || n.Visible == visible {
		return
	}

	n.Visible = visible
	if visible {
		g.visible++
		sceneVisibleNodes.Inc()
	} else {
		g.visible--
		sceneVisibleNodes.Dec()
	}
}

// NodeCount returns the number of attached patches.
func (g *Graph) NodeCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.nodes)
}

// VisibleCount returns the number of visible patches.
func (g *Graph) VisibleCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.visible
}

// Get returns a copy of the patch with the given handle.
func (g *Graph) Get(h uint32) (Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[h]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Visible returns the visible patches ordered by handle.
func (g *Graph) Visible() []Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	nodes := make([]Node, 0, g.visible)
	for _, n := range g.nodes {
		if n.Visible {
			nodes = append(nodes, *n)
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Handle < nodes[j].Handle
	})
	return nodes
}

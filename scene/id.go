package scene

import (
	"sort"
	"sync"
)

// A sequential handle generator. Released handles are reused, lowest first,
// so a long running graph keeps its handles dense.
type handleGenerator struct {
	mutex    sync.Mutex
	current  uint32
	reusable []uint32
}

// New returns a handle that is not in use.
func (g *handleGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusable) != 0 {
		h := g.reusable[0]
		g.reusable = g.reusable[1:]
		return h
	}

	g.current++
	return g.current
}

// Reuse marks the given handle as reusable.
func (g *handleGenerator) Reuse(h uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	i := sort.Search(len(g.reusable), func(i int) bool {
		return g.reusable[i] >= h
	})
	if i < len(g.reusable) && g.reusable[i] == h {
		return
	}

	g.reusable = append(g.reusable, 0)
	copy(g.reusable[i+1:], g.reusable[i:])
	g.reusable[i] = h
}

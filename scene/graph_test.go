package scene

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/tiles"
	"github.com/stretchr/testify/require"
)

func TestHandleGenerator(t *testing.T) {
	t.Run("returns new handles", func(t *testing.T) {
		var g handleGenerator

		for i := 1; i <= 5; i++ {
			require.Equal(t, uint32(i), g.New())
		}
	})

	t.Run("reuses the lowest released handle", func(t *testing.T) {
		var g handleGenerator

		for i := 1; i <= 5; i++ {
			g.New()
		}

		g.Reuse(4)
		g.Reuse(2)
		g.Reuse(4)
		require.Equal(t, uint32(2), g.New())
		require.Equal(t, uint32(4), g.New())
		require.Equal(t, uint32(6), g.New())
	})
}

func TestGraph(t *testing.T) {
	t.Run("attach and detach", func(t *testing.T) {
		g := NewGraph()

		h, err := g.Attach(tiles.Key{Zoom: 1}, &mesh.Mesh{}, []byte("img"))
		require.NoError(t, err)
		require.Equal(t, 1, g.NodeCount())

		n, ok := g.Get(h)
		require.True(t, ok)
		require.False(t, n.Visible)
		require.Equal(t, []byte("img"), n.Imagery)

		g.Detach(h)
		require.Zero(t, g.NodeCount())

		_, ok = g.Get(h)
		require.False(t, ok)

		g.Detach(h)
		require.Zero(t, g.NodeCount())
	})

	t.Run("attach without mesh", func(t *testing.T) {
		g := NewGraph()

		_, err := g.Attach(tiles.Key{}, nil, nil)
		require.True(t, errors.IsType(err, ErrTypeNilMesh))
		require.Zero(t, g.NodeCount())
	})

	t.Run("visibility", func(t *testing.T) {
		g := NewGraph()

		a, _ := g.Attach(tiles.Key{Zoom: 1}, &mesh.Mesh{}, nil)
		b, _ := g.Attach(tiles.Key{Zoom: 1, Col: 1}, &mesh.Mesh{}, nil)

		g.SetVisible(b, true)
		g.SetVisible(b, true)
		g.SetVisible(a, true)
		require.Equal(t, 2, g.VisibleCount())

		visible := g.Visible()
		require.Len(t, visible, 2)
		require.Equal(t, a, visible[0].Handle)

		g.SetVisible(a, false)
		require.Equal(t, 1, g.VisibleCount())

		g.Detach(b)
		require.Zero(t, g.VisibleCount())

		g.SetVisible(42, true)
		require.Zero(t, g.VisibleCount())
	})
}

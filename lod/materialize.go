package lod

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/tiles"
	"golang.org/x/time/rate"
)

const (
	resultChanSize = 256
)

// materialization is the outcome of loading the image and mesh of a patch.
type materialization struct {
	id       NodeID
	mesh     *mesh.Mesh
	imagery  []byte
	duration time.Duration
	err      error
}

// materializer loads patches in background goroutines. Goroutines never touch
// nodes: results are delivered on a channel drained by the tree.
type materializer struct {
	provider  TileProvider
	generator MeshGenerator
	limiter   *rate.Limiter
	timeout   time.Duration

	ctx     context.Context
	cancel  func()
	wg      sync.WaitGroup
	results chan materialization
}

func newMaterializer(provider TileProvider, generator MeshGenerator, conf Config) *materializer {
	limit := rate.Inf
	burst := conf.MaterializeBurst
	if conf.MaterializeRate > 0 {
		limit = rate.Limit(conf.MaterializeRate)
	}
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &materializer{
		provider:  provider,
		generator: generator,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   conf.FetchTimeout,
		ctx:       ctx,
		cancel:    cancel,
		results:   make(chan materialization, resultChanSize),
	}
}

// Request starts loading the given patch. The result is delivered on Results.
func (m *materializer) Request(id NodeID, key tiles.Key, bounds geo.Bounds) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		if err := m.limiter.Wait(m.ctx); err != nil {
			return
		}

		res := m.Load(m.ctx, key, bounds)
		res.id = id

		select {
		case m.results <- res:
		case <-m.ctx.Done():
		}
	}()
}

// Load synchronously fetches the image and builds the mesh of a patch.
func (m *materializer) Load(ctx context.Context, key tiles.Key, bounds geo.Bounds) (res materialization) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		res.duration = time.Since(start)
		instrumentMaterialization(res.duration, res.err)
	}()

	imagery, err := m.provider.Fetch(ctx, key)
	if err != nil {
		res.err = errors.New("fetching tile image failed").
			WithType(ErrTypeFetch).
			WithTag("tile", key.String()).
			Wrap(err)
		return res
	}

	geometry, err := m.generator.Generate(bounds)
	if err != nil {
		res.err = errors.New("generating patch mesh failed").
			WithType(ErrTypeMesh).
			WithTag("tile", key.String()).
			Wrap(err)
		return res
	}

	res.mesh = geometry
	res.imagery = imagery
	return res
}

// Results returns the channel where completed materializations are delivered.
func (m *materializer) Results() <-chan materialization {
	return m.results
}

// Close cancels pending materializations and waits for their goroutines to
// return.
func (m *materializer) Close() {
	m.cancel()
	m.wg.Wait()
}

package lod

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/tiles"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// CameraSource provides the viewer position, in the same unit as the
// ellipsoid.
type CameraSource interface {
	Position() r3.Vector
}

// TileProvider fetches tile images.
type TileProvider interface {
	Fetch(ctx context.Context, k tiles.Key) ([]byte, error)
}

// MeshGenerator builds the geometry of a patch from its bounds.
type MeshGenerator interface {
	Generate(b geo.Bounds) (*mesh.Mesh, error)
}

// Scene is the render graph where materialized patches are displayed.
type Scene interface {
	// Attaches a hidden patch and returns its handle.
	Attach(k tiles.Key, m *mesh.Mesh, imagery []byte) (uint32, error)

	// Detaches a patch.
	Detach(handle uint32)

	// Shows or hides a patch.
	SetVisible(handle uint32, visible bool)

	// Returns the number of nodes in the scene.
	NodeCount() int
}

// Dependencies are the external services used by a Tree.
type Dependencies struct {
	Camera    CameraSource
	Provider  TileProvider
	Generator MeshGenerator
	Scene     Scene
}

// BatchReport describes a decision batch once fully applied.
type BatchReport struct {
	TreeUUID  string    `json:"tree_uuid"`
	Sequence  uint64    `json:"sequence"`
	Splits    int       `json:"splits"`
	Merges    int       `json:"merges"`
	Reloads   int       `json:"reloads"`
	Visible   int       `json:"visible"`
	NodeCount int       `json:"node_count"`
	AppliedAt time.Time `json:"applied_at"`
}

// Tree is an adaptive level of detail quadtree covering a planet.
//
// Tick must be called from a single goroutine, usually once per frame. It is
// the only place where the tree structure is modified. The decision and cull
// workers read the structure in the background and send their requests to
// bounded queues drained by Tick.
type Tree struct {
	config     Config
	thresholds Thresholds
	uuid       string
	tracer     trace.Tracer

	camera       CameraSource
	scene        Scene
	materializer *materializer

	// Guards the node arena and the roots. Only Tick and Initialize write.
	mutex       sync.RWMutex
	nodes       arena
	roots       []NodeID
	initialized atomic.Bool
	closed      atomic.Bool

	cameraMutex    sync.Mutex
	cameraPosition r3.Vector

	splitQueue  *queue
	mergeQueue  *queue
	reloadQueue *queue
	cullQueue   *queue

	// Set by the decision worker when its requests are all enqueued.
	batchReady atomic.Bool
	batch      BatchReport
	batchSeq   uint64

	// Set while no decision batch is pending.
	quiescent *event

	// Set when the scene exceeds the node budget.
	cullWanted *event

	nodeCount atomic.Int64

	callbackMutex  sync.Mutex
	callbacks      map[uint64]func(BatchReport)
	nextCallbackID uint64

	decision *DecisionWorker
	cull     *CullWorker

	summaryMutex  sync.Mutex
	summary       map[string]int
	summaryCancel func()
	summaryDone   chan struct{}
}

// NewTree validates the configuration and returns a tree ready to be
// initialized.
func NewTree(conf Config, deps Dependencies) (*Tree, error) {
	if conf.Projection == nil {
		conf.Projection = geo.WebMercator{}
	}
	if conf.Ellipsoid == (geo.Ellipsoid{}) {
		conf.Ellipsoid = geo.WGS84
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	if deps.Camera == nil || deps.Provider == nil || deps.Generator == nil || deps.Scene == nil {
		return nil, errors.New("missing tree dependency").
			WithType(ErrTypeInvalidConfig).
			WithTag("camera", deps.Camera != nil).
			WithTag("provider", deps.Provider != nil).
			WithTag("generator", deps.Generator != nil).
			WithTag("scene", deps.Scene != nil)
	}

	thresholds := DefaultThresholds(conf.MaxDepth)
	if conf.Thresholds != nil {
		thresholds = *conf.Thresholds
	}

	var tracer trace.Tracer = noop.NewTracerProvider().Tracer("lod")
	if !conf.DisableTracing {
		tracer = otel.Tracer("lod")
	}

	t := &Tree{
		config:       conf,
		thresholds:   thresholds,
		uuid:         uuid.NewString(),
		tracer:       tracer,
		camera:       deps.Camera,
		scene:        deps.Scene,
		materializer: newMaterializer(deps.Provider, deps.Generator, conf),
		splitQueue:   newQueue(splitQueueName, conf.QueueSize),
		mergeQueue:   newQueue(mergeQueueName, conf.QueueSize),
		reloadQueue:  newQueue(reloadQueueName, conf.QueueSize),
		cullQueue:    newQueue(cullQueueName, conf.QueueSize),
		quiescent:    newEvent(false),
		cullWanted:   newEvent(false),
		callbacks:    make(map[uint64]func(BatchReport)),
		summary:      make(map[string]int),
	}

	t.decision = newDecisionWorker(t)
	t.cull = newCullWorker(t)
	return t, nil
}

// UUID returns the tree identifier used in logs.
func (t *Tree) UUID() string {
	return t.uuid
}

// Thresholds returns the split and merge distances used by the tree.
func (t *Tree) Thresholds() Thresholds {
	return t.thresholds
}

// Initialize creates the root nodes at the minimum depth and expands them
// breadth first down to startDepth. Every created patch is materialized before
// returning. Patches that fail to materialize are retried when needed.
func (t *Tree) Initialize(ctx context.Context, startDepth int) error {
	if startDepth < t.config.MinDepth || startDepth > t.config.MaxDepth {
		return errors.New("start depth must be between min depth and max depth").
			WithType(ErrTypeInvalidConfig).
			WithTag("start_depth", startDepth).
			WithTag("min_depth", t.config.MinDepth).
			WithTag("max_depth", t.config.MaxDepth)
	}

	start := time.Now()
	t.updateCamera()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.initialized.Load() {
		return errors.New("tree is already initialized").
			WithTag("tree_uuid", t.uuid)
	}

	p := t.config.Projection
	rows := p.Rows(t.config.MinDepth)
	cols := p.Cols(t.config.MinDepth)

	level := make([]NodeID, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			n := t.newNode(t.config.MinDepth, row, col, NodeID{})
			t.roots = append(t.roots, n.id)
			level = append(level, n.id)
		}
	}

	created := append([]NodeID(nil), level...)
	for depth := t.config.MinDepth; depth < startDepth; depth++ {
		next := make([]NodeID, 0, len(level)*4)
		for _, id := range level {
			n, _ := t.nodes.get(id)
			t.createChildren(n)
			next = append(next, n.children[:]...)
		}
		created = append(created, next...)
		level = next
	}

	for _, id := range level {
		n, _ := t.nodes.get(id)
		n.visible = true
	}

	results := make([]materialization, len(created))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.config.InitConcurrency)

	for i, id := range created {
		n, _ := t.nodes.get(id)
		n.patch.State = PatchPending

		i := i
		id := id
		key := n.patch.Key
		bounds := n.patch.Bounds

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := t.materializer.Load(gctx, key, bounds)
			res.id = id
			results[i] = res
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// Nothing was attached to the scene yet.
		t.roots = nil
		t.nodes = arena{}

		return errors.New("initializing tree failed").
			WithTag("tree_uuid", t.uuid).
			Wrap(err)
	}

	var failures int
	for _, res := range results {
		if res.err != nil {
			failures++
		}
		t.applyMaterialization(res)
	}

	t.nodeCount.Store(int64(t.scene.NodeCount()))
	t.initialized.Store(true)
	t.quiescent.Set()

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("roots", len(t.roots)).
		WithTag("nodes", t.nodes.len()).
		WithTag("start_depth", startDepth).
		WithTag("failures", failures).
		WithTag("duration", time.Since(start)).
		Info("quadtree initialized")
	return nil
}

// Start starts the decision and cull workers.
func (t *Tree) Start(ctx context.Context) error {
	if !t.initialized.Load() {
		return errors.New("starting an uninitialized tree").
			WithTag("tree_uuid", t.uuid)
	}
	if t.closed.Load() {
		return errors.New("starting a shut down tree").
			WithTag("tree_uuid", t.uuid)
	}

	t.decision.Start(ctx)
	if !t.config.DisableCull {
		t.cull.Start(ctx)
	}

	if t.config.LogSummaryInterval > 0 {
		t.startSummaryWorker()
	}

	logs.WithTag("tree_uuid", t.uuid).
		WithTag("cull", !t.config.DisableCull).
		Info("quadtree workers started")
	return nil
}

// Shutdown stops the workers and cancels pending materializations. Each
// worker is given ShutdownTimeout to stop.
func (t *Tree) Shutdown() {
	if t.closed.Swap(true) {
		return
	}

	t.decision.Stop(t.config.ShutdownTimeout)
	t.cull.Stop(t.config.ShutdownTimeout)
	t.stopSummaryWorker()
	t.materializer.Close()

	logs.WithTag("tree_uuid", t.uuid).Info("quadtree shut down")
}

// Tick applies pending work: completed materializations, at most
// MaxQueueUpdatesPerFrame split and merge requests of the current decision
// batch and at most MaxQueueUpdatesPerFrame cull requests. It must be called
// from a single goroutine.
func (t *Tree) Tick() {
	if !t.initialized.Load() || t.closed.Load() {
		return
	}

	t.updateCamera()

	var report *BatchReport
	k := t.config.MaxQueueUpdatesPerFrame

	t.mutex.Lock()
	t.applyMaterializations()

	if t.batchReady.Load() {
		t.batch.Splits += t.splitQueue.Drain(k, t.applySplit)
		t.batch.Merges += t.mergeQueue.Drain(k, t.applyMerge)
		t.batch.Reloads += t.reloadQueue.Drain(k, t.applyReload)

		if t.splitQueue.Len() == 0 && t.mergeQueue.Len() == 0 && t.reloadQueue.Len() == 0 {
			t.batchReady.Store(false)
			report = t.completeBatch()
		}
	}

	t.cullQueue.Drain(k, t.applyCull)
	t.mutex.Unlock()

	nodeCount := t.scene.NodeCount()
	t.nodeCount.Store(int64(nodeCount))

	if !t.config.DisableCull &&
		float64(nodeCount) > float64(t.config.MaxNodes)*t.config.CleanupThresholdPercent &&
		t.cullQueue.Len() == 0 {
		t.cullWanted.Set()
	}

	if report != nil {
		report.NodeCount = nodeCount
		t.quiescent.Set()
		t.notifyBatchApplied(*report)
	}
}

func (t *Tree) completeBatch() *BatchReport {
	t.batchSeq++

	report := t.batch
	report.TreeUUID = t.uuid
	report.Sequence = t.batchSeq
	report.Visible = t.visibleCount()
	report.AppliedAt = time.Now()

	t.batch = BatchReport{}
	lodBatches.Inc()
	return &report
}

// Quiescent returns a channel closed while the last decision batch is fully
// applied. A new channel is used for each batch.
func (t *Tree) Quiescent() <-chan struct{} {
	return t.quiescent.Done()
}

// OnBatchApplied registers a function called from Tick each time a decision
// batch is fully applied. It must not block.
func (t *Tree) OnBatchApplied(h func(BatchReport)) (cancel func()) {
	t.callbackMutex.Lock()
	defer t.callbackMutex.Unlock()

	t.nextCallbackID++
	id := t.nextCallbackID
	t.callbacks[id] = h

	return func() {
		t.callbackMutex.Lock()
		defer t.callbackMutex.Unlock()

		delete(t.callbacks, id)
	}
}

func (t *Tree) notifyBatchApplied(r BatchReport) {
	t.callbackMutex.Lock()
	handlers := make([]func(BatchReport), 0, len(t.callbacks))
	for _, h := range t.callbacks {
		handlers = append(handlers, h)
	}
	t.callbackMutex.Unlock()

	for _, h := range handlers {
		h(r)
	}
}

// NodeCount returns the number of scene nodes observed at the last tick.
func (t *Tree) NodeCount() int {
	return int(t.nodeCount.Load())
}

// Initialized reports whether Initialize completed.
func (t *Tree) Initialized() bool {
	return t.initialized.Load()
}

func (t *Tree) updateCamera() {
	position := t.camera.Position()

	t.cameraMutex.Lock()
	defer t.cameraMutex.Unlock()

	t.cameraPosition = position
}

// CameraSnapshot returns the camera position copied at the last tick.
func (t *Tree) CameraSnapshot() r3.Vector {
	t.cameraMutex.Lock()
	defer t.cameraMutex.Unlock()

	return t.cameraPosition
}

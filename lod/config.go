package lod

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/tiles"
)

const (
	ErrTypeInvalidConfig = "invalid_config"
	ErrTypeFetch         = "fetch"
	ErrTypeMesh          = "mesh"
	ErrTypeScene         = "scene"

	// Hard limits of the quadtree depth.
	MinDepthLimit = 1
	MaxDepthLimit = 23

	DefaultMinDepth                    = 6
	DefaultMaxDepth                    = 20
	DefaultMaxNodes                    = 7500
	DefaultCleanupThresholdPercent     = 0.90
	DefaultMaxQueueUpdatesPerFrame     = 2
	DefaultMaxMaterializationsPerFrame = 16
	DefaultQueueSize                   = 4096
	DefaultInitConcurrency             = 16
	DefaultFetchTimeout                = time.Second * 10
	DefaultShutdownTimeout             = time.Second * 5
	DefaultLogSummaryInterval          = time.Minute
)

// Config is the configuration of a Tree.
type Config struct {
	// The depth of the root nodes.
	MinDepth int

	// The deepest depth a node can be split to.
	MaxDepth int

	// The node budget. Nodes hidden below the frontier are culled when the
	// scene holds more than MaxNodes * CleanupThresholdPercent nodes.
	MaxNodes                int
	CleanupThresholdPercent float64

	// The maximum number of split and merge requests applied per tick, for
	// each queue.
	MaxQueueUpdatesPerFrame int

	// The maximum number of completed materializations attached to the scene
	// per tick.
	MaxMaterializationsPerFrame int

	// The capacity of each request queue. Requests are dropped when a queue
	// is full.
	QueueSize int

	// The number of patches materialized concurrently during initialization.
	InitConcurrency int

	// The number of materializations started per second. Unlimited when 0.
	MaterializeRate  float64
	MaterializeBurst int

	// The time allowed to fetch a tile image and build its mesh.
	FetchTimeout time.Duration

	// The minimum duration between two decision cycles.
	DecisionInterval time.Duration

	// The time to wait for each worker to stop.
	ShutdownTimeout time.Duration

	// The duration between each tree summary log. Disabled when 0.
	LogSummaryInterval time.Duration

	// The imagery layer requested to the tile provider.
	Layer tiles.Layer

	// The tiling projection. Defaults to Web Mercator.
	Projection geo.Projection

	// The surface where node positions are computed. Defaults to WGS84, in
	// kilometers.
	Ellipsoid geo.Ellipsoid

	// Split and merge distances. Defaults to DefaultThresholds.
	Thresholds *Thresholds

	DisableCull    bool
	DisableTracing bool
}

// DefaultConfig returns a configuration with the default values.
func DefaultConfig() Config {
	return Config{
		MinDepth:                    DefaultMinDepth,
		MaxDepth:                    DefaultMaxDepth,
		MaxNodes:                    DefaultMaxNodes,
		CleanupThresholdPercent:     DefaultCleanupThresholdPercent,
		MaxQueueUpdatesPerFrame:     DefaultMaxQueueUpdatesPerFrame,
		MaxMaterializationsPerFrame: DefaultMaxMaterializationsPerFrame,
		QueueSize:                   DefaultQueueSize,
		InitConcurrency:             DefaultInitConcurrency,
		FetchTimeout:                DefaultFetchTimeout,
		ShutdownTimeout:             DefaultShutdownTimeout,
		LogSummaryInterval:          DefaultLogSummaryInterval,
		Projection:                  geo.WebMercator{},
		Ellipsoid:                   geo.WGS84,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxDepth < MinDepthLimit || c.MaxDepth > MaxDepthLimit:
		return errors.New("max depth is out of limits").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_depth", c.MaxDepth).
			WithTag("limit_min", MinDepthLimit).
			WithTag("limit_max", MaxDepthLimit)

	case c.MinDepth < MinDepthLimit || c.MinDepth > c.MaxDepth:
		return errors.New("min depth must be between the depth limit and max depth").
			WithType(ErrTypeInvalidConfig).
			WithTag("min_depth", c.MinDepth).
			WithTag("max_depth", c.MaxDepth)

	case c.MaxNodes <= 0:
		return errors.New("max nodes must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_nodes", c.MaxNodes)

	case c.CleanupThresholdPercent <= 0 || c.CleanupThresholdPercent > 1:
		return errors.New("cleanup threshold percent must be in (0, 1]").
			WithType(ErrTypeInvalidConfig).
			WithTag("cleanup_threshold_percent", c.CleanupThresholdPercent)

	case c.MaxQueueUpdatesPerFrame <= 0:
		return errors.New("max queue updates per frame must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_queue_updates_per_frame", c.MaxQueueUpdatesPerFrame)

	case c.MaxMaterializationsPerFrame <= 0:
		return errors.New("max materializations per frame must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_materializations_per_frame", c.MaxMaterializationsPerFrame)

	case c.QueueSize <= 0:
		return errors.New("queue size must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("queue_size", c.QueueSize)

	case c.InitConcurrency <= 0:
		return errors.New("init concurrency must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("init_concurrency", c.InitConcurrency)

	case c.MaterializeRate < 0:
		return errors.New("materialize rate cannot be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("materialize_rate", c.MaterializeRate)

	case c.FetchTimeout <= 0:
		return errors.New("fetch timeout must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("fetch_timeout", c.FetchTimeout)

	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown timeout must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("shutdown_timeout", c.ShutdownTimeout)

	case c.Ellipsoid.SemiMajorAxis <= 0 || c.Ellipsoid.SemiMinorAxis <= 0:
		return errors.New("ellipsoid axes must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("semi_major_axis", c.Ellipsoid.SemiMajorAxis).
			WithTag("semi_minor_axis", c.Ellipsoid.SemiMinorAxis)
	}

	if c.Thresholds != nil {
		return c.Thresholds.Validate(c.MaxDepth)
	}
	return nil
}

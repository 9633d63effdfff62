package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/lodtree/featureflag"
	"github.com/aukilabs/lodtree/geo"
	lodhttp "github.com/aukilabs/lodtree/http"
	"github.com/aukilabs/lodtree/lod"
	"github.com/aukilabs/lodtree/mesh"
	"github.com/aukilabs/lodtree/scene"
	"github.com/aukilabs/lodtree/tiles"
	lodwebsocket "github.com/aukilabs/lodtree/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

const (
	tileProviderHTTP      = "http"
	tileProviderSynthetic = "synthetic"
)

var (
	// The lodtree version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "lodtree_info",
		Help:        "Lodtree information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"LODTREE_ADDR"                  help:"Listening address for frontier streams and debug endpoints."`
	AdminAddr          string        `cli:""        env:"LODTREE_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"LODTREE_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	LogLevel           string        `cli:""        env:"LODTREE_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"LODTREE_LOG_INDENT"            help:"Indent logs."`
	FrameDuration      time.Duration `cli:""        env:"LODTREE_FRAME_DURATION"        help:"The duration of a frame. The tree is ticked once per frame."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"LODTREE_SYNC_CLOCK_INTERVAL"   help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"LODTREE_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"LODTREE_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary."`
	ShutdownTimeout    time.Duration `cli:",hidden" env:"LODTREE_SHUTDOWN_TIMEOUT"      help:"The time given to servers and workers to stop."`
	Tree               treeConfig    `cli:""        env:"-"                             help:"Quadtree configuration."`
	Tiles              tilesConfig   `cli:""        env:"-"                             help:"Tile provider configuration."`
	Camera             cameraConfig  `cli:""        env:"-"                             help:"Scripted camera configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                             help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"LODTREE_FEATURE_FLAGS"         help:"Comma separated feature flags."`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type treeConfig struct {
	MinDepth                int           `cli:""        env:"LODTREE_TREE_MIN_DEPTH"                  help:"The depth of the root nodes."`
	MaxDepth                int           `cli:""        env:"LODTREE_TREE_MAX_DEPTH"                  help:"The deepest depth a node can be split to."`
	StartDepth              int           `cli:""        env:"LODTREE_TREE_START_DEPTH"                help:"The depth of the frontier after initialization."`
	MaxNodes                int           `cli:""        env:"LODTREE_TREE_MAX_NODES"                  help:"The node budget of the scene."`
	CleanupThresholdPercent float64       `cli:",hidden" env:"LODTREE_TREE_CLEANUP_THRESHOLD_PERCENT"  help:"The fraction of the node budget that triggers culling."`
	MaxQueueUpdatesPerFrame int           `cli:",hidden" env:"LODTREE_TREE_MAX_QUEUE_UPDATES_PER_FRAME" help:"The maximum number of split and merge requests applied per frame."`
	Projection              string        `cli:""        env:"LODTREE_TREE_PROJECTION"                 help:"Tiling projection (web_mercator|geodetic)."`
	Ellipsoid               string        `cli:",hidden" env:"LODTREE_TREE_ELLIPSOID"                  help:"Planet shape (wgs84|unit_sphere)."`
	DecisionInterval        time.Duration `cli:",hidden" env:"LODTREE_TREE_DECISION_INTERVAL"          help:"The minimum duration between two decision cycles."`
	InitConcurrency         int           `cli:",hidden" env:"LODTREE_TREE_INIT_CONCURRENCY"           help:"The number of patches materialized concurrently during initialization."`
}

type tilesConfig struct {
	Provider         string        `cli:""        env:"LODTREE_TILES_PROVIDER"          help:"Tile provider (http|synthetic)."`
	Layer            string        `cli:""        env:"LODTREE_TILES_LAYER"             help:"Imagery layer (satellite|street|hybrid)."`
	URLTemplate      string        `cli:",hidden" env:"LODTREE_TILES_URL_TEMPLATE"      help:"Tile URL template."`
	Format           string        `cli:",hidden" env:"LODTREE_TILES_FORMAT"            help:"Requested image format."`
	Language         string        `cli:",hidden" env:"LODTREE_TILES_LANGUAGE"          help:"Requested imagery language."`
	RateLimit        float64       `cli:",hidden" env:"LODTREE_TILES_RATE_LIMIT"        help:"The maximum number of tile requests per second. No limit when 0."`
	RateBurst        int           `cli:",hidden" env:"LODTREE_TILES_RATE_BURST"        help:"The number of tile requests allowed in a burst."`
	FetchTimeout     time.Duration `cli:",hidden" env:"LODTREE_TILES_FETCH_TIMEOUT"     help:"The time allowed to fetch a tile."`
	SyntheticLatency time.Duration `cli:",hidden" env:"LODTREE_TILES_SYNTHETIC_LATENCY" help:"The simulated latency of the synthetic provider."`
}

type cameraConfig struct {
	Latitude    float64       `cli:"" env:"LODTREE_CAMERA_LATITUDE"     help:"Camera starting latitude, in degrees."`
	Longitude   float64       `cli:"" env:"LODTREE_CAMERA_LONGITUDE"    help:"Camera starting longitude, in degrees."`
	MaxAltitude float64       `cli:"" env:"LODTREE_CAMERA_MAX_ALTITUDE" help:"Camera highest altitude, in kilometers."`
	MinAltitude float64       `cli:"" env:"LODTREE_CAMERA_MIN_ALTITUDE" help:"Camera lowest altitude, in kilometers."`
	Period      time.Duration `cli:"" env:"LODTREE_CAMERA_PERIOD"       help:"The duration of an orbit. The camera is static when 0."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"LODTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Disabled when empty."`
	FlushInterval time.Duration `cli:",hidden" env:"LODTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"LODTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"LODTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func defaultConfig() config {
	treeDefaults := lod.DefaultConfig()

	return config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		FrameDuration:      time.Millisecond * 16,
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: lod.DefaultLogSummaryInterval,
		ShutdownTimeout:    lod.DefaultShutdownTimeout,
		Tree: treeConfig{
			MinDepth:                treeDefaults.MinDepth,
			MaxDepth:                treeDefaults.MaxDepth,
			StartDepth:              treeDefaults.MinDepth,
			MaxNodes:                treeDefaults.MaxNodes,
			CleanupThresholdPercent: treeDefaults.CleanupThresholdPercent,
			MaxQueueUpdatesPerFrame: treeDefaults.MaxQueueUpdatesPerFrame,
			Projection:              geo.WebMercator{}.Name(),
			Ellipsoid:               "wgs84",
			InitConcurrency:         treeDefaults.InitConcurrency,
		},
		Tiles: tilesConfig{
			Provider:     tileProviderSynthetic,
			Layer:        tiles.LayerSatellite.String(),
			URLTemplate:  tiles.DefaultURLTemplate,
			Format:       tiles.DefaultFormat,
			Language:     tiles.DefaultLanguage,
			RateLimit:    50,
			RateBurst:    10,
			FetchTimeout: treeDefaults.FetchTimeout,
		},
		Camera: cameraConfig{
			Latitude:    1.3521,
			Longitude:   103.8198,
			MaxAltitude: 20000,
			MinAltitude: 50,
			Period:      time.Minute * 2,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts a planetary level of detail quadtree and streams its frontier.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "lodtree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	treeConf, err := newTreeConfig(conf, featureFlags)
	if err != nil {
		logs.Fatal(err)
	}

	graph := scene.NewGraph()

	tree, err := lod.NewTree(treeConf, lod.Dependencies{
		Camera: &orbitCamera{
			Ellipsoid:   treeConf.Ellipsoid,
			Latitude:    conf.Camera.Latitude * geo.DegreesToRadians,
			Longitude:   conf.Camera.Longitude * geo.DegreesToRadians,
			MaxAltitude: conf.Camera.MaxAltitude,
			MinAltitude: conf.Camera.MinAltitude,
			Period:      conf.Camera.Period,
		},
		Provider:  newTileProvider(conf, transport),
		Generator: mesh.Ellipsoid{Shape: treeConf.Ellipsoid},
		Scene:     graph,
	})
	if err != nil {
		logs.Fatal(errors.New("creating quadtree failed").Wrap(err))
	}

	if err := tree.Initialize(ctx, conf.Tree.StartDepth); err != nil {
		logs.Fatal(errors.New("initializing quadtree failed").Wrap(err))
	}
	if err := tree.Start(ctx); err != nil {
		logs.Fatal(err)
	}
	defer tree.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runFrames(ctx, tree, conf.FrameDuration)
	}()

	readinessCheck := tree.Initialized

	var service http.ServeMux
	service.Handle("/health", lodhttp.HandleWithCORS(http.HandlerFunc(lodhttp.HandleHealthCheck)))
	service.Handle("/ready", lodhttp.HandleWithCORS(lodhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", lodhttp.HandleWithCORS(lodhttp.HandleVersion(version)))

	featureFlags.IfNotSet(featureflag.FlagDisableDebugEndpoint, func() {
		service.Handle("/debug/tree", lodhttp.HandleWithCORS(lodhttp.HandleJSON(func() any {
			return tree.DebugInfo()
		})))
		service.Handle("/debug/frontier", lodhttp.HandleWithCORS(lodhttp.HandleJSON(func() any {
			return tree.Frontier()
		})))
	})

	service.Handle("/frontier", websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h lodwebsocket.Handler = &lodwebsocket.FrontierHandler{
				Tree:                    tree,
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				FeatureFlags:            featureFlags,
			}
			h = lodwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = lodwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			lodwebsocket.Handle(ctx, conn, h)
		},
	})

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", lodhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", lodhttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("tree_uuid", tree.UUID()).
		WithTag("tile_provider", conf.Tiles.Provider).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting lodtree server")

	lodhttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			lodhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	wg.Wait()
}

// runFrames ticks the tree once per frame until the context is done.
func runFrames(ctx context.Context, tree *lod.Tree, frameDuration time.Duration) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			tree.Tick()
		}
	}
}

func newTreeConfig(conf config, flags featureflag.FeatureFlag) (lod.Config, error) {
	c := lod.DefaultConfig()
	c.MinDepth = conf.Tree.MinDepth
	c.MaxDepth = conf.Tree.MaxDepth
	c.MaxNodes = conf.Tree.MaxNodes
	c.CleanupThresholdPercent = conf.Tree.CleanupThresholdPercent
	c.MaxQueueUpdatesPerFrame = conf.Tree.MaxQueueUpdatesPerFrame
	c.DecisionInterval = conf.Tree.DecisionInterval
	c.InitConcurrency = conf.Tree.InitConcurrency
	c.FetchTimeout = conf.Tiles.FetchTimeout
	c.ShutdownTimeout = conf.ShutdownTimeout
	c.LogSummaryInterval = conf.LogSummaryInterval
	c.DisableCull = flags.IsSet(featureflag.FlagDisableCull)
	c.DisableTracing = flags.IsSet(featureflag.FlagDisableTracing)

	projection, ok := geo.ProjectionByName(conf.Tree.Projection)
	if !ok {
		return lod.Config{}, errors.New("unknown projection").
			WithType(lod.ErrTypeInvalidConfig).
			WithTag("projection", conf.Tree.Projection)
	}
	c.Projection = projection

	switch conf.Tree.Ellipsoid {
	case "wgs84", "":
		c.Ellipsoid = geo.WGS84

	case "unit_sphere":
		c.Ellipsoid = geo.UnitSphere

	default:
		return lod.Config{}, errors.New("unknown ellipsoid").
			WithType(lod.ErrTypeInvalidConfig).
			WithTag("ellipsoid", conf.Tree.Ellipsoid)
	}

	layer, ok := tiles.ParseLayer(conf.Tiles.Layer)
	if !ok {
		return lod.Config{}, errors.New("unknown imagery layer").
			WithType(lod.ErrTypeInvalidConfig).
			WithTag("layer", conf.Tiles.Layer)
	}
	c.Layer = layer

	return c, nil
}

func newTileProvider(conf config, transport http.RoundTripper) lod.TileProvider {
	if conf.Tiles.Provider == tileProviderSynthetic {
		return tiles.Synthetic{
			Latency: conf.Tiles.SyntheticLatency,
		}
	}

	var limiter *rate.Limiter
	if conf.Tiles.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(conf.Tiles.RateLimit), conf.Tiles.RateBurst)
	}

	return &tiles.HTTPProvider{
		URLTemplate: conf.Tiles.URLTemplate,
		Format:      conf.Tiles.Format,
		Language:    conf.Tiles.Language,
		Transport:   transport,
		Limiter:     limiter,
		UserAgent:   fmt.Sprintf("lodtree/%s", version),
	}
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	switch conf.Tiles.Provider {
	case tileProviderHTTP, tileProviderSynthetic:
	default:
		return errors.New("unknown tile provider").
			WithTag("provider", conf.Tiles.Provider)
	}

	if conf.Tiles.RateLimit > 0 && conf.Tiles.RateBurst <= 0 {
		return errors.New("tile rate burst must be positive when rate limited").
			WithTag("rate_burst", conf.Tiles.RateBurst)
	}

	if conf.Camera.MinAltitude > conf.Camera.MaxAltitude {
		return errors.New("camera min altitude is greater than max altitude").
			WithTag("min_altitude", conf.Camera.MinAltitude).
			WithTag("max_altitude", conf.Camera.MaxAltitude)
	}

	return nil
}

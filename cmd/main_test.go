package main

import (
	"math"
	"testing"
	"time"

	"github.com/aukilabs/lodtree/featureflag"
	"github.com/aukilabs/lodtree/geo"
	"github.com/aukilabs/lodtree/tiles"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		require.NoError(t, validateConfig(defaultConfig()))
	})

	tests := []struct {
		name   string
		change func(*config)
	}{
		{
			name:   "invalid public endpoint",
			change: func(c *config) { c.PublicEndpoint = "not a url" },
		},
		{
			name:   "no frame duration",
			change: func(c *config) { c.FrameDuration = 0 },
		},
		{
			name:   "unknown tile provider",
			change: func(c *config) { c.Tiles.Provider = "carrier_pigeon" },
		},
		{
			name: "rate limited without burst",
			change: func(c *config) {
				c.Tiles.RateLimit = 10
				c.Tiles.RateBurst = 0
			},
		},
		{
			name: "camera min altitude above max altitude",
			change: func(c *config) {
				c.Camera.MinAltitude = 100
				c.Camera.MaxAltitude = 10
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := defaultConfig()
			test.change(&c)
			require.Error(t, validateConfig(c))
		})
	}
}

func TestNewTreeConfig(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c, err := newTreeConfig(defaultConfig(), featureflag.New(nil))
		require.NoError(t, err)
		require.Equal(t, geo.WebMercator{}.Name(), c.Projection.Name())
		require.Equal(t, geo.WGS84, c.Ellipsoid)
		require.Equal(t, tiles.LayerSatellite, c.Layer)
		require.False(t, c.DisableCull)
		require.False(t, c.DisableTracing)
	})

	t.Run("feature flags", func(t *testing.T) {
		c, err := newTreeConfig(defaultConfig(), featureflag.New([]string{
			string(featureflag.FlagDisableCull),
			string(featureflag.FlagDisableTracing),
		}))
		require.NoError(t, err)
		require.True(t, c.DisableCull)
		require.True(t, c.DisableTracing)
	})

	t.Run("geodetic unit sphere", func(t *testing.T) {
		conf := defaultConfig()
		conf.Tree.Projection = geo.Geodetic{}.Name()
		conf.Tree.Ellipsoid = "unit_sphere"
		conf.Tiles.Layer = tiles.LayerHybrid.String()

		c, err := newTreeConfig(conf, featureflag.New(nil))
		require.NoError(t, err)
		require.Equal(t, geo.Geodetic{}.Name(), c.Projection.Name())
		require.Equal(t, geo.UnitSphere, c.Ellipsoid)
		require.Equal(t, tiles.LayerHybrid, c.Layer)
	})

	invalid := []struct {
		name   string
		change func(*config)
	}{
		{
			name:   "unknown projection",
			change: func(c *config) { c.Tree.Projection = "mollweide" },
		},
		{
			name:   "unknown ellipsoid",
			change: func(c *config) { c.Tree.Ellipsoid = "mars" },
		},
		{
			name:   "unknown layer",
			change: func(c *config) { c.Tiles.Layer = "infrared" },
		},
	}

	for _, test := range invalid {
		t.Run(test.name, func(t *testing.T) {
			conf := defaultConfig()
			test.change(&conf)

			_, err := newTreeConfig(conf, featureflag.New(nil))
			require.Error(t, err)
		})
	}
}

func TestNewTileProvider(t *testing.T) {
	t.Run("synthetic", func(t *testing.T) {
		p := newTileProvider(defaultConfig(), nil)
		require.IsType(t, tiles.Synthetic{}, p)
	})

	t.Run("http with rate limit", func(t *testing.T) {
		conf := defaultConfig()
		conf.Tiles.Provider = tileProviderHTTP

		p := newTileProvider(conf, nil)
		require.IsType(t, &tiles.HTTPProvider{}, p)
		require.NotNil(t, p.(*tiles.HTTPProvider).Limiter)
	})

	t.Run("http without rate limit", func(t *testing.T) {
		conf := defaultConfig()
		conf.Tiles.Provider = tileProviderHTTP
		conf.Tiles.RateLimit = 0

		p := newTileProvider(conf, nil)
		require.Nil(t, p.(*tiles.HTTPProvider).Limiter)
	})
}

func TestOrbitCamera(t *testing.T) {
	const (
		minAltitude = 0.5
		maxAltitude = 4.0
	)

	t.Run("static camera", func(t *testing.T) {
		c := orbitCamera{
			Ellipsoid:   geo.UnitSphere,
			MinAltitude: minAltitude,
			MaxAltitude: maxAltitude,
		}

		lat, lon, alt := geo.UnitSphere.Geodetic(c.Position())
		require.InDelta(t, 0, lat, 1e-6)
		require.InDelta(t, 0, lon, 1e-6)
		require.InDelta(t, maxAltitude, alt, 1e-3)
	})

	t.Run("orbit", func(t *testing.T) {
		now := time.Now()

		c := orbitCamera{
			Ellipsoid:   geo.UnitSphere,
			Latitude:    0.5,
			Longitude:   1,
			MinAltitude: minAltitude,
			MaxAltitude: maxAltitude,
			Period:      time.Minute,
			now:         func() time.Time { return now },
		}

		lat, lon, alt := geo.UnitSphere.Geodetic(c.Position())
		require.InDelta(t, 0.5, lat, 1e-6)
		require.InDelta(t, 1, lon, 1e-6)
		require.InDelta(t, maxAltitude, alt, 1e-3)

		now = now.Add(time.Second * 30)
		lat, lon, alt = geo.UnitSphere.Geodetic(c.Position())
		require.InDelta(t, 0.5, lat, 1e-6)
		require.InDelta(t, math.Cos(1-math.Pi), math.Cos(lon), 1e-6)
		require.InDelta(t, math.Sin(1-math.Pi), math.Sin(lon), 1e-6)
		require.InDelta(t, minAltitude, alt, 1e-3)

		now = now.Add(time.Second * 30)
		_, lon, alt = geo.UnitSphere.Geodetic(c.Position())
		require.InDelta(t, 1, lon, 1e-6)
		require.InDelta(t, maxAltitude, alt, 1e-3)
	})
}

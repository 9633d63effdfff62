package tiles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/geo"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderURL(t *testing.T) {
	t.Run("default template", func(t *testing.T) {
		p := HTTPProvider{}

		url, err := p.URL(Key{Zoom: 3, Row: 5, Col: 3, Layer: LayerStreet})
		require.NoError(t, err)
		require.Equal(t, "https://ecn.t0.tiles.virtualearth.net/tiles/r213.jpeg?g=1&mkt=en-US", url)
	})

	t.Run("server instance rotates", func(t *testing.T) {
		p := HTTPProvider{URLTemplate: "{server}"}

		var servers []string
		for i := 0; i < 5; i++ {
			url, err := p.URL(Key{})
			require.NoError(t, err)
			servers = append(servers, url)
		}
		require.Equal(t, []string{"0", "1", "2", "3", "0"}, servers)
	})

	t.Run("invalid tile", func(t *testing.T) {
		p := HTTPProvider{}

		_, err := p.URL(Key{Zoom: 1, Row: 2})
		require.True(t, errors.IsType(err, geo.ErrTypeInvalidTile))
	})
}

func TestHTTPProviderFetch(t *testing.T) {
	t.Run("fetches an image", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/a/12", r.URL.Path)
			require.Equal(t, "lodtree-test", r.UserAgent())
			w.Write([]byte("image"))
		}))
		defer server.Close()

		p := HTTPProvider{
			URLTemplate: server.URL + "/{map_type}/{quadkey}",
			UserAgent:   "lodtree-test",
		}

		img, err := p.Fetch(context.Background(), Key{Zoom: 2, Row: 1, Col: 2})
		require.NoError(t, err)
		require.Equal(t, []byte("image"), img)
	})

	t.Run("non ok status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		p := HTTPProvider{URLTemplate: server.URL + "/{quadkey}"}

		_, err := p.Fetch(context.Background(), Key{Zoom: 1})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeHTTPStatus))
	})

	t.Run("concurrent fetches of a tile are collapsed", func(t *testing.T) {
		var requests atomic.Int32
		release := make(chan struct{})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			<-release
			w.Write([]byte("image"))
		}))
		defer server.Close()

		p := HTTPProvider{URLTemplate: server.URL + "/{quadkey}"}

		var wg sync.WaitGroup
		images := make(chan []byte, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				img, err := p.Fetch(context.Background(), Key{Zoom: 4, Row: 3, Col: 9})
				if err == nil {
					images <- img
				}
			}()
		}

		require.Eventually(t, func() bool {
			return requests.Load() == 1
		}, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)

		wg.Wait()
		close(images)
		require.Equal(t, int32(1), requests.Load())
		require.Len(t, images, 4)
		for img := range images {
			require.Equal(t, []byte("image"), img)
		}
	})

	t.Run("canceled caller does not fail a shared fetch", func(t *testing.T) {
		var requests atomic.Int32
		received := make(chan struct{}, 1)
		release := make(chan struct{})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			received <- struct{}{}
			<-release
			w.Write([]byte("image"))
		}))
		defer server.Close()

		p := HTTPProvider{URLTemplate: server.URL + "/{quadkey}"}
		key := Key{Zoom: 3, Row: 2, Col: 5}

		ctx, cancel := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := p.Fetch(ctx, key)
			firstErr <- err
		}()
		<-received

		type result struct {
			img []byte
			err error
		}
		second := make(chan result, 1)
		go func() {
			img, err := p.Fetch(context.Background(), key)
			second <- result{img: img, err: err}
		}()
		time.Sleep(20 * time.Millisecond)

		cancel()
		require.ErrorIs(t, <-firstErr, context.Canceled)

		close(release)
		res := <-second
		require.NoError(t, res.err)
		require.Equal(t, []byte("image"), res.img)
		require.Equal(t, int32(1), requests.Load())
	})

	t.Run("shared fetch times out", func(t *testing.T) {
		release := make(chan struct{})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		p := HTTPProvider{
			URLTemplate:    server.URL + "/{quadkey}",
			RequestTimeout: time.Millisecond * 20,
		}

		_, err := p.Fetch(context.Background(), Key{Zoom: 1})
		require.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("image"))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := HTTPProvider{URLTemplate: server.URL + "/{quadkey}"}

		_, err := p.Fetch(ctx, Key{Zoom: 1})
		require.Error(t, err)
	})
}

func TestSyntheticFetch(t *testing.T) {
	t.Run("encodes the tile", func(t *testing.T) {
		img, err := Synthetic{}.Fetch(context.Background(), Key{Zoom: 3, Row: 5, Col: 3, Layer: LayerHybrid})
		require.NoError(t, err)
		require.Equal(t, "hybrid:213", string(img))
	})

	t.Run("failure", func(t *testing.T) {
		s := Synthetic{
			Fail: func(k Key) error {
				return errors.New("boom")
			},
		}

		_, err := s.Fetch(context.Background(), Key{})
		require.Error(t, err)
	})

	t.Run("latency honors context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()

		_, err := Synthetic{Latency: time.Minute}.Fetch(ctx, Key{})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestKey(t *testing.T) {
	k := Key{Zoom: 2, Row: 1, Col: 3, Layer: LayerStreet}
	require.Equal(t, "street/2/1/3", k.String())
	require.Equal(t, Key{Zoom: 3, Row: 3, Col: 6, Layer: LayerStreet}, k.Child(2))

	l, ok := ParseLayer("hybrid")
	require.True(t, ok)
	require.Equal(t, LayerHybrid, l)

	_, ok = ParseLayer("terrain")
	require.False(t, ok)
}

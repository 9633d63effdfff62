package tiles

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	ErrTypeHTTPStatus = "http_status"

	// The Bing Maps quadkey tile URL.
	DefaultURLTemplate = "https://ecn.t{server}.tiles.virtualearth.net/tiles/{map_type}{quadkey}.{format}?g={version}&mkt={lang}"

	DefaultFormat     = "jpeg"
	DefaultAPIVersion = "1"
	DefaultLanguage   = "en-US"

	DefaultRequestTimeout = time.Second * 30

	serverInstances = 4
)

// HTTPProvider fetches tile images from a quadkey addressed imagery server.
//
// Concurrent fetches of the same URL are collapsed into a single request.
type HTTPProvider struct {
	// The URL template. {server}, {map_type}, {quadkey}, {format}, {version},
	// {lang}, {zoom}, {row} and {col} are substituted.
	URLTemplate string

	// The image format requested.
	Format string

	// The imagery API version.
	APIVersion string

	// The imagery market language.
	Language string

	// The transport used to send requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Limits the number of requests sent to the imagery server. No limit when
	// nil.
	Limiter *rate.Limiter

	// The user agent sent with each request.
	UserAgent string

	// The time allowed to a request shared by concurrent fetches. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	initOnce   sync.Once
	client     *http.Client
	group      singleflight.Group
	nextServer atomic.Uint32
}

func (p *HTTPProvider) init() {
	p.initOnce.Do(func() {
		if p.URLTemplate == "" {
			p.URLTemplate = DefaultURLTemplate
		}
		if p.Format == "" {
			p.Format = DefaultFormat
		}
		if p.APIVersion == "" {
			p.APIVersion = DefaultAPIVersion
		}
		if p.Language == "" {
			p.Language = DefaultLanguage
		}
		if p.RequestTimeout <= 0 {
			p.RequestTimeout = DefaultRequestTimeout
		}

		transport := p.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		p.client = &http.Client{Transport: transport}
	})
}

// URL returns the URL of the given tile. Each call rotates the server
// instance.
func (p *HTTPProvider) URL(k Key) (string, error) {
	p.init()

	quadkey, err := k.Quadkey()
	if err != nil {
		return "", err
	}

	server := (p.nextServer.Add(1) - 1) % serverInstances

	r := strings.NewReplacer(
		"{server}", strconv.Itoa(int(server)),
		"{map_type}", k.Layer.mapType(),
		"{quadkey}", quadkey,
		"{format}", p.Format,
		"{version}", p.APIVersion,
		"{lang}", p.Language,
		"{zoom}", strconv.Itoa(k.Zoom),
		"{row}", strconv.Itoa(k.Row),
		"{col}", strconv.Itoa(k.Col),
	)
	return r.Replace(p.URLTemplate), nil
}

// Fetch downloads the image of the given tile.
func (p *HTTPProvider) Fetch(ctx context.Context, k Key) ([]byte, error) {
	p.init()
	start := time.Now()

	quadkey, err := k.Quadkey()
	if err != nil {
		instrumentFetch(k.Layer, start, false, 0, err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		instrumentFetch(k.Layer, start, false, 0, err)
		return nil, err
	}

	// The request outlives the caller that started it: other callers may be
	// waiting for the same tile.
	ch := p.group.DoChan(k.Layer.String()+"/"+quadkey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.RequestTimeout)
		defer cancel()

		return p.fetch(fetchCtx, k)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		instrumentFetch(k.Layer, start, false, 0, err)
		return nil, err

	case res := <-ch:
		if res.Err != nil {
			instrumentFetch(k.Layer, start, res.Shared, 0, res.Err)
			return nil, res.Err
		}

		img := res.Val.([]byte)
		instrumentFetch(k.Layer, start, res.Shared, len(img), nil)
		return img, nil
	}
}

func (p *HTTPProvider) fetch(ctx context.Context, k Key) ([]byte, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url, err := p.URL(k)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New("creating tile request failed").
			WithTag("tile", k.String()).
			Wrap(err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, errors.New("tile request failed").
			WithTag("tile", k.String()).
			Wrap(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, errors.New("unexpected tile server response").
			WithType(ErrTypeHTTPStatus).
			WithTag("tile", k.String()).
			WithTag("status_code", res.StatusCode)
	}

	img, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.New("reading tile response failed").
			WithTag("tile", k.String()).
			Wrap(err)
	}
	return img, nil
}

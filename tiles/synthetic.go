package tiles

import (
	"context"
	"time"
)

// Synthetic generates placeholder tile images without network access. The
// generated image is the tile key encoded as text.
type Synthetic struct {
	// The time spent generating each image.
	Latency time.Duration

	// Makes the fetch of a tile fail when it returns an error.
	Fail func(Key) error
}

func (s Synthetic) Fetch(ctx context.Context, k Key) ([]byte, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if s.Fail != nil {
		if err := s.Fail(k); err != nil {
			return nil, err
		}
	}

	quadkey, err := k.Quadkey()
	if err != nil {
		return nil, err
	}
	return []byte(k.Layer.String() + ":" + quadkey), nil
}

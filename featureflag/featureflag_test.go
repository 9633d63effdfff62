package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagDisableCull)})

	t.Run("is set", func(t *testing.T) {
		require.True(t, f.IsSet(FlagDisableCull))
		require.False(t, f.IsSet(FlagDisableTracing))
	})

	t.Run("run if enabled", func(t *testing.T) {
		var disableCull bool
		f.IfSet(FlagDisableCull, func() {
			disableCull = true
		})
		require.True(t, disableCull)

		var disableStream bool
		f.IfSet(FlagDisableFrontierStream, func() {
			disableStream = true
		})
		require.False(t, disableStream)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var cull bool
		f.IfNotSet(FlagDisableCull, func() {
			cull = true
		})
		require.False(t, cull)

		var stream bool
		f.IfNotSet(FlagDisableFrontierStream, func() {
			stream = true
		})
		require.True(t, stream)
	})

	t.Run("nil flags", func(t *testing.T) {
		var nilFlags FeatureFlag
		require.False(t, nilFlags.IsSet(FlagDisableCull))
	})
}

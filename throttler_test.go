package throttling

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrMissingStore)

	th, err := New(Options{Store: newTestStore()})
	require.NoError(t, err)
	assert.True(t, th.Enabled())

	th, err = New(Options{Store: newTestStore(), Disabled: true})
	require.NoError(t, err)
	assert.False(t, th.Enabled())
}

func TestThrottler_EnableDisable(t *testing.T) {
	th, err := New(Options{Store: newTestStore()})
	require.NoError(t, err)

	th.SetEnabled(false)
	assert.False(t, th.Enabled())

	th.Enable()
	assert.True(t, th.Enabled())

	th.Disable()
	assert.False(t, th.Enabled())

	th.Reset()
	assert.True(t, th.Enabled())
}

func TestThrottler_For(t *testing.T) {
	t.Run("returns a cached throttle per action", func(t *testing.T) {
		th, err := New(Options{Store: newTestStore(), Limits: simpleLimits()})
		require.NoError(t, err)

		first, err := th.For("foo")
		require.NoError(t, err)
		assert.Equal(t, "foo", first.Action)

		second, err := th.For("foo")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("fails without limits", func(t *testing.T) {
		th, err := New(Options{Store: newTestStore()})
		require.NoError(t, err)

		_, err = th.For("foo")
		assert.ErrorIs(t, err, ErrMissingLimits)
	})

	t.Run("fails for an action without a section", func(t *testing.T) {
		th, err := New(Options{Store: newTestStore(), Limits: Limits{"foo": nil}})
		require.NoError(t, err)

		_, err = th.For("foo")
		assert.ErrorIs(t, err, ErrUnknownAction)

		// failures are not cached
		th.SetLimits(simpleLimits())
		_, err = th.For("foo")
		assert.NoError(t, err)
	})

	t.Run("sees disabling after construction", func(t *testing.T) {
		store := newTestStore()
		store.hits = fixedHits(1000)
		th, throttle := newTestThrottle(t, simpleLimits(), "foo", store)

		th.Disable()
		res, err := throttle.CheckIP(context.Background(), "127.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Empty(t, store.fetches)
	})
}

func TestThrottler_SetLimits(t *testing.T) {
	th, err := New(Options{Store: newTestStore(), Limits: simpleLimits()})
	require.NoError(t, err)

	before, err := th.For("foo")
	require.NoError(t, err)

	th.SetLimits(Limits{"foo": map[string]any{"limit": 1, "period": 60}})
	assert.Contains(t, th.Limits(), "foo")

	after, err := th.For("foo")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, int64(60), after.Periods[0].Period)
	assert.Equal(t, int64(2), before.Periods[0].Period)
}

func TestThrottler_LoadLimitsFile(t *testing.T) {
	th, err := New(Options{Store: newTestStore()})
	require.NoError(t, err)

	require.NoError(t, th.LoadLimitsFile("testdata/throttling.yml"))
	_, err = th.For("user_signup")
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("foo: [unclosed"), 0o644))
	assert.Error(t, th.LoadLimitsFile(path))
	assert.Contains(t, th.Limits(), "user_signup", "failed loads keep the previous limits")
}

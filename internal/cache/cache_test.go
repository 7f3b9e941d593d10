package cache

import (
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
}

func TestNew_Policies(t *testing.T) {
	for _, p := range []Policy{
		{},
		DefaultPolicy(),
		{Type: TypeTTL, TTL: time.Minute},
		{Type: TypeUnbounded},
		{Type: TypeWeak},
	} {
		t.Run(string(p.Type), func(t *testing.T) {
			c, err := New[entry](p)
			require.NoError(t, err)

			e := &entry{name: "a"}
			c.Add("a", e)
			got, ok := c.Get("a")
			require.True(t, ok)
			assert.Same(t, e, got)
			assert.Equal(t, 1, c.Len())

			c.Remove("a")
			_, ok = c.Get("a")
			assert.False(t, ok)

			c.Add("b", e)
			c.Purge()
			assert.Equal(t, 0, c.Len())
			runtime.KeepAlive(e)
		})
	}
}

func TestNew_None(t *testing.T) {
	c, err := New[entry](Policy{Type: TypeNone})
	require.NoError(t, err)

	c.Add("a", &entry{})
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[entry](Policy{Type: TypeLRU, Size: 2})
	require.NoError(t, err)

	c.Add("a", &entry{name: "a"})
	c.Add("b", &entry{name: "b"})
	_, _ = c.Get("a")
	c.Add("c", &entry{name: "c"})

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestTTL_Expires(t *testing.T) {
	c, err := New[entry](Policy{Type: TypeTTL, TTL: 20 * time.Millisecond})
	require.NoError(t, err)

	c.Add("a", &entry{})
	_, ok := c.Get("a")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestWeak_DropsCollectedValues(t *testing.T) {
	c, err := New[entry](Policy{Type: TypeWeak})
	require.NoError(t, err)

	kept := &entry{name: "kept"}
	c.Add("kept", kept)
	for i := 0; i < 10; i++ {
		c.Add("tmp"+strconv.Itoa(i), &entry{name: "tmp"})
	}

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, ok := c.Get("kept")
	require.True(t, ok)
	assert.Same(t, kept, got)
	runtime.KeepAlive(kept)
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{Type: TypeTTL}.Validate())
	assert.Error(t, Policy{Type: "fifo"}.Validate())
	assert.Error(t, Policy{Type: TypeLRU, Size: -1}.Validate())

	_, err := New[entry](Policy{Type: "fifo"})
	assert.Error(t, err)
}

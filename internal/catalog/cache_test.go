package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheMissThenHit(t *testing.T) {
	c := newTTLCache(time.Minute)
	key := cacheKey{arch: "noarch", build: 1594}

	_, ok := c.get(key)
	assert.False(t, ok)

	c.set(key, "value")
	got, ok := c.get(key)
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestTTLCacheExpires(t *testing.T) {
	now := time.Now()
	c := newTTLCache(time.Minute)
	c.now = func() time.Time { return now }

	key := cacheKey{arch: "noarch", build: 1594}
	c.set(key, "value")

	now = now.Add(61 * time.Second)
	_, ok := c.get(key)
	assert.False(t, ok)
}

func TestTTLCacheDistinctKeysDoNotCollide(t *testing.T) {
	c := newTTLCache(time.Minute)
	a := cacheKey{arch: "noarch", build: 1594, major: 6}
	b := cacheKey{arch: "noarch", build: 1594, major: 7}

	c.set(a, "six")
	c.set(b, "seven")

	got, ok := c.get(a)
	assert.True(t, ok)
	assert.Equal(t, "six", got)

	got, ok = c.get(b)
	assert.True(t, ok)
	assert.Equal(t, "seven", got)
}

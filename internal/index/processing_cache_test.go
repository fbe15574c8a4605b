package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance the cache's notion of time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache() (*ProcessingCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	cache := NewProcessingCache()
	cache.now = clock.Now
	return cache, clock
}

func TestMarkProcessingClaimsOnce(t *testing.T) {
	cache, _ := newTestCache()

	assert.False(t, cache.IsProcessing("a.go"))
	require.True(t, cache.MarkProcessing("a.go"))
	assert.True(t, cache.IsProcessing("a.go"))

	// Second claimant is told to skip, not wait.
	assert.False(t, cache.MarkProcessing("a.go"))

	cache.MarkDone("a.go")
	assert.False(t, cache.IsProcessing("a.go"))
	assert.True(t, cache.MarkProcessing("a.go"))
}

func TestShouldReanalyzeCooldown(t *testing.T) {
	cache, clock := newTestCache()
	cooldown := 5 * time.Second

	// Never analyzed: always stale.
	assert.True(t, cache.ShouldReanalyze("a.go", cooldown))

	require.True(t, cache.MarkProcessing("a.go"))
	cache.MarkDone("a.go")
	assert.False(t, cache.ShouldReanalyze("a.go", cooldown))

	clock.Advance(4 * time.Second)
	assert.False(t, cache.ShouldReanalyze("a.go", cooldown))

	clock.Advance(2 * time.Second)
	assert.True(t, cache.ShouldReanalyze("a.go", cooldown))
}

func TestLastAnalyzedAt(t *testing.T) {
	cache, clock := newTestCache()

	assert.True(t, cache.LastAnalyzedAt("a.go").IsZero())

	cache.MarkProcessing("a.go")
	cache.MarkDone("a.go")
	assert.Equal(t, clock.t, cache.LastAnalyzedAt("a.go"))
}

func TestDigestChanged(t *testing.T) {
	cache, _ := newTestCache()

	// First sighting always counts as changed.
	assert.True(t, cache.DigestChanged("a.go", []byte("package a")))
	assert.False(t, cache.DigestChanged("a.go", []byte("package a")))
	assert.True(t, cache.DigestChanged("a.go", []byte("package a // edited")))
	assert.False(t, cache.DigestChanged("a.go", []byte("package a // edited")))
}

func TestForgetAndClear(t *testing.T) {
	cache, _ := newTestCache()

	cache.MarkProcessing("a.go")
	cache.MarkDone("a.go")
	cache.MarkProcessing("b.go")
	cache.MarkDone("b.go")

	cache.Forget("a.go")
	assert.True(t, cache.LastAnalyzedAt("a.go").IsZero())
	assert.False(t, cache.LastAnalyzedAt("b.go").IsZero())

	cache.Clear()
	assert.True(t, cache.LastAnalyzedAt("b.go").IsZero())
}

func TestProcessingEntriesAreIndependent(t *testing.T) {
	cache, _ := newTestCache()

	require.True(t, cache.MarkProcessing("a.go"))
	require.True(t, cache.MarkProcessing("b.go"))

	cache.MarkDone("a.go")
	assert.False(t, cache.IsProcessing("a.go"))
	assert.True(t, cache.IsProcessing("b.go"))
}

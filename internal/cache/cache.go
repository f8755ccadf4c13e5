package cache

import (
	"sync"

	"github.com/folio-labs/journey/internal/geo"
)

type trackKey struct {
	layout geo.Layout
	n      int
}

// TrackCache caches built tracks per (layout, milestone count). Every
// session and HTTP request over the same content shares one Track, so the
// path and polyline are sampled once.
type TrackCache struct {
	m      sync.Mutex
	tracks map[trackKey]geo.Track
	hits   SafeCounter
	misses SafeCounter
}

func NewTrackCache() *TrackCache {
	return &TrackCache{
		tracks: make(map[trackKey]geo.Track),
	}
}

// Get returns the cached track or builds and stores it. Build errors are not
// cached.
func (c *TrackCache) Get(l geo.Layout, n int) (geo.Track, error) {
	key := trackKey{layout: l, n: n}

	c.m.Lock()
	if t, ok := c.tracks[key]; ok {
		c.m.Unlock()
		c.hits.Inc()
		return t, nil
	}
	c.m.Unlock()

	c.misses.Inc()
	t, err := geo.BuildTrack(l, n)
	if err != nil {
		return geo.Track{}, err
	}

	c.m.Lock()
	c.tracks[key] = t
	c.m.Unlock()
	return t, nil
}

// Len returns the number of cached tracks.
func (c *TrackCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.tracks)
}

// Stats returns cache hits and misses since creation or the last Reset.
func (c *TrackCache) Stats() (hits, misses int) {
	return c.hits.Value(), c.misses.Value()
}

// Reset drops every cached track. Called when the content store reloads.
func (c *TrackCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.tracks = make(map[trackKey]geo.Track)
	c.hits.Set(0)
	c.misses.Set(0)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}

func (c *SafeCounter) Dec() {
	c.mu.Lock()
	c.v--
	c.mu.Unlock()
}

// Package synthcache caches synthesized audio keyed by (text, language).
//
// The fan-out stage consults the cache before every TTS call, so repeated
// phrases ("Good morning.", session boilerplate) cost one synthesis per
// language instead of one per utterance. The cache is a bounded map with
// FIFO eviction and copy-on-write snapshots: readers never take a lock,
// writers serialize on a mutex and publish a fresh snapshot atomically.
//
// Entries are never mutated after insertion, so two reads of the same key
// always observe identical bytes.
package synthcache

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxEntries bounds the cache so a long session with diverse speech
// cannot grow memory without limit.
const DefaultMaxEntries = 500

type key struct {
	text string
	lang string
}

// Cache is a bounded (text, language) to audio-bytes map. Safe for
// concurrent use; the zero value is not usable, use New.
type Cache struct {
	max int

	snapshot atomic.Pointer[map[key][]byte]

	mu    sync.Mutex
	order []key
}

// New creates a Cache bounded to maxEntries. Non-positive maxEntries falls
// back to DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{max: maxEntries}
	empty := make(map[key][]byte)
	c.snapshot.Store(&empty)
	return c
}

// Get returns the cached audio for (text, lang) and whether it was present.
// The returned slice must not be modified.
func (c *Cache) Get(text, lang string) ([]byte, bool) {
	m := *c.snapshot.Load()
	audio, ok := m[key{text: text, lang: lang}]
	return audio, ok
}

// Put inserts audio under (text, lang). An existing entry is kept untouched
// so earlier readers and later readers agree on the bytes. At capacity the
// oldest entry is evicted first.
func (c *Cache) Put(text, lang string, audio []byte) {
	k := key{text: text, lang: lang}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.snapshot.Load()
	if _, exists := old[k]; exists {
		return
	}

	next := make(map[key][]byte, len(old)+1)
	for ok, ov := range old {
		next[ok] = ov
	}

	if len(next) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(next, oldest)
	}

	next[k] = audio
	c.order = append(c.order, k)
	c.snapshot.Store(&next)
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	return len(*c.snapshot.Load())
}

// Clear drops every entry, e.g. on session teardown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	empty := make(map[key][]byte)
	c.order = nil
	c.snapshot.Store(&empty)
}

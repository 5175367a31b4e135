package synthcache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestCache_PutGet(t *testing.T) {
	c := New(10)

	if _, ok := c.Get("hola", "es"); ok {
		t.Fatal("Get on empty cache reported a hit")
	}

	c.Put("hola", "es", []byte("mp3-es"))
	audio, ok := c.Get("hola", "es")
	if !ok {
		t.Fatal("Get missed after Put")
	}
	if !bytes.Equal(audio, []byte("mp3-es")) {
		t.Fatalf("Get returned %q, want %q", audio, "mp3-es")
	}
}

func TestCache_KeyIncludesLanguage(t *testing.T) {
	c := New(10)
	c.Put("hello", "en", []byte("en-audio"))

	if _, ok := c.Get("hello", "fr"); ok {
		t.Fatal("hit for a different language of the same text")
	}
}

func TestCache_ExistingEntryKept(t *testing.T) {
	c := New(10)
	c.Put("hello", "en", []byte("first"))
	c.Put("hello", "en", []byte("second"))

	audio, _ := c.Get("hello", "en")
	if !bytes.Equal(audio, []byte("first")) {
		t.Fatalf("entry was overwritten: got %q, want %q", audio, "first")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestCache_FIFOEvictionAtCapacity(t *testing.T) {
	c := New(3)
	c.Put("a", "en", []byte("a"))
	c.Put("b", "en", []byte("b"))
	c.Put("c", "en", []byte("c"))
	c.Put("d", "en", []byte("d"))

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("a", "en"); ok {
		t.Fatal("oldest entry survived eviction")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k, "en"); !ok {
			t.Fatalf("entry %q missing after eviction of the oldest", k)
		}
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(10)
	c.Put("a", "en", []byte("a"))
	c.Put("b", "en", []byte("b"))
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("a", "en"); ok {
		t.Fatal("entry survived Clear")
	}

	// The cache stays usable after Clear.
	c.Put("c", "en", []byte("c"))
	if _, ok := c.Get("c", "en"); !ok {
		t.Fatal("Put after Clear did not stick")
	}
}

func TestCache_ConcurrentReadersAndWriters(t *testing.T) {
	c := New(100)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				text := fmt.Sprintf("text-%d", i%50)
				c.Put(text, "en", []byte(text))
				if audio, ok := c.Get(text, "en"); ok && !bytes.Equal(audio, []byte(text)) {
					t.Errorf("worker %d read corrupted bytes %q for %q", w, audio, text)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Fatalf("Len = %d, exceeds the bound", c.Len())
	}
}

package cache

import (
	"container/list"
	"time"
)

type tierID int

const (
	primaryTier tierID = iota + 1
	secondaryTier
)

func (t tierID) String() string {
	if t == primaryTier {
		return "primary"
	}

	return "secondary"
}

type entry[V any] struct {
	key      string
	value    V
	priority Priority
	tags     []string

	insertedAt time.Time
	// expiresAt bounds the entry in its current tier.
	expiresAt time.Time
	// deadline is the latest moment the entry may live in any tier.
	deadline time.Time

	hits int
	tier tierID
	elem *list.Element
}

func (e *entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// tier is one LRU level split into one list per priority. Front is most
// recently used.
type tier[V any] struct {
	id       tierID
	capacity int
	ttl      time.Duration

	entries map[string]*entry[V]
	lru     [Critical + 1]*list.List
}

func newTier[V any](id tierID, capacity int, ttl time.Duration) *tier[V] {
	t := &tier[V]{
		id:       id,
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[V]),
	}

	for p := range t.lru {
		t.lru[p] = list.New()
	}

	return t
}

func (t *tier[V]) len() int { return len(t.entries) }

func (t *tier[V]) full() bool { return len(t.entries) >= t.capacity }

func (t *tier[V]) add(e *entry[V]) {
	e.tier = t.id
	e.elem = t.lru[e.priority].PushFront(e)
	t.entries[e.key] = e
}

func (t *tier[V]) remove(e *entry[V]) {
	t.lru[e.priority].Remove(e.elem)
	e.elem = nil
	delete(t.entries, e.key)
}

func (t *tier[V]) touch(e *entry[V]) {
	t.lru[e.priority].MoveToFront(e.elem)
}

// victim returns the least recently used entry of the lowest non-empty
// priority. Critical entries are chosen only when nothing else is left.
func (t *tier[V]) victim() *entry[V] {
	for p := Low; p <= Critical; p++ {
		if back := t.lru[p].Back(); back != nil {
			return back.Value.(*entry[V])
		}
	}

	return nil
}

// expiredEntries lists entries whose current-tier lifetime has ended.
func (t *tier[V]) expiredEntries(now time.Time) []*entry[V] {
	var out []*entry[V]

	for _, e := range t.entries {
		if e.expired(now) {
			out = append(out, e)
		}
	}

	return out
}

func (t *tier[V]) reset() {
	t.entries = make(map[string]*entry[V])

	for p := range t.lru {
		t.lru[p].Init()
	}
}

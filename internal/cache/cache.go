// Package cache implements the two-tier decision cache.
//
// New entries enter the larger secondary tier. An entry hit a second time is
// promoted to the small primary tier, whose shorter TTL never outlives the
// entry's own deadline. An entry pushed out of a full primary tier is demoted
// back to the secondary tier while it is still live. Within a tier, eviction
// removes the least recently used entry of the lowest priority present.
//
// Every entry may carry tags; InvalidateByTag drops all entries sharing one.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/accessgate/accessgate/internal/clock"
	"github.com/accessgate/accessgate/internal/metrics"
)

// promoteAfter is the hit count at which a secondary entry moves to the primary tier.
const promoteAfter = 2

// Config sizes the two tiers.
type Config struct {
	PrimarySize   int
	PrimaryTTL    time.Duration
	SecondarySize int
	SecondaryTTL  time.Duration
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PrimarySize:   1000,
		PrimaryTTL:    5 * time.Minute,
		SecondarySize: 10000,
		SecondaryTTL:  30 * time.Minute,
	}
}

// Validate reports whether c describes usable tiers.
func (c Config) Validate() error {
	switch {
	case c.PrimarySize <= 0:
		return fmt.Errorf("%w: primary size must be positive", ErrInvalidConfig)
	case c.SecondarySize <= 0:
		return fmt.Errorf("%w: secondary size must be positive", ErrInvalidConfig)
	case c.PrimaryTTL <= 0:
		return fmt.Errorf("%w: primary ttl must be positive", ErrInvalidConfig)
	case c.SecondaryTTL <= 0:
		return fmt.Errorf("%w: secondary ttl must be positive", ErrInvalidConfig)
	}

	return nil
}

// SetOptions describe a new entry.
type SetOptions struct {
	Priority Priority
	Tags     []string
	// ExpiresAt, when set, caps the entry's lifetime in every tier.
	ExpiresAt *time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	PrimaryHits      uint64 `json:"primaryHits"`
	SecondaryHits    uint64 `json:"secondaryHits"`
	Promotions       uint64 `json:"promotions"`
	Demotions        uint64 `json:"demotions"`
	Evictions        uint64 `json:"evictions"`
	Expirations      uint64 `json:"expirations"`
	Invalidations    uint64 `json:"invalidations"`
	PrimaryEntries   int    `json:"primaryEntries"`
	SecondaryEntries int    `json:"secondaryEntries"`
	Tags             int    `json:"tags"`
}

// HitRate returns the share of lookups answered from either tier.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Cache is a concurrency-safe two-tier cache of V.
type Cache[V any] struct {
	mu sync.Mutex

	primary   *tier[V]
	secondary *tier[V]
	tags      map[string]map[string]struct{}

	stats Stats

	clock   clock.Clock
	metrics *metrics.Metrics
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock   clock.Clock
	metrics *metrics.Metrics
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics sets the collectors the cache reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// New builds an empty cache.
func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	return &Cache[V]{
		primary:   newTier[V](primaryTier, cfg.PrimarySize, cfg.PrimaryTTL),
		secondary: newTier[V](secondaryTier, cfg.SecondarySize, cfg.SecondaryTTL),
		tags:      make(map[string]map[string]struct{}),
		clock:     o.clock,
		metrics:   o.metrics,
	}, nil
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.updateGauges()

	if e, ok := c.primary.entries[key]; ok {
		if !e.expired(now) {
			e.hits++
			c.primary.touch(e)
			c.hit(primaryTier)

			return e.value, true
		}

		// primary lifetime ended; fall back to the secondary tier if the
		// entry's deadline allows it
		c.primary.remove(e)

		if now.Before(e.deadline) {
			c.demote(e)
		} else {
			c.drop(e)
			c.stats.Expirations++
		}
	}

	e, ok := c.secondary.entries[key]
	if !ok {
		c.miss()

		return zero, false
	}

	if e.expired(now) {
		c.secondary.remove(e)
		c.drop(e)
		c.stats.Expirations++
		c.miss()

		return zero, false
	}

	e.hits++
	c.hit(secondaryTier)

	if e.hits >= promoteAfter {
		c.secondary.remove(e)
		c.insertPrimary(e, now)
		c.stats.Promotions++
		c.metrics.CachePromotions.Inc()
	} else {
		c.secondary.touch(e)
	}

	return e.value, true
}

// Set stores value under key. An entry whose deadline has already passed is not stored.
func (c *Cache[V]) Set(key string, value V, opts SetOptions) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	wasPrimary := false

	if old := c.lookup(key); old != nil {
		wasPrimary = old.tier == primaryTier
		c.unlink(old)
		c.drop(old)
	}

	deadline := now.Add(c.secondary.ttl)
	if opts.ExpiresAt != nil && opts.ExpiresAt.Before(deadline) {
		deadline = *opts.ExpiresAt
	}

	if !now.Before(deadline) {
		c.updateGauges()

		return
	}

	priority := opts.Priority
	if priority < Low || priority > Critical {
		priority = Normal
	}

	e := &entry[V]{
		key:        key,
		value:      value,
		priority:   priority,
		tags:       normalizeTags(opts.Tags),
		insertedAt: now,
		deadline:   deadline,
	}

	for _, tag := range e.tags {
		set, ok := c.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tags[tag] = set
		}

		set[key] = struct{}{}
	}

	if wasPrimary {
		c.insertPrimary(e, now)
	} else {
		c.insertSecondary(e)
	}

	c.updateGauges()
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e == nil {
		return false
	}

	c.unlink(e)
	c.drop(e)
	c.updateGauges()

	return true
}

// InvalidateByTag removes every entry carrying tag and returns how many were removed.
func (c *Cache[V]) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.invalidateLocked(tag)
	c.updateGauges()

	return n
}

// InvalidateByTags removes every entry carrying any of tags.
func (c *Cache[V]) InvalidateByTags(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, tag := range tags {
		n += c.invalidateLocked(tag)
	}

	c.updateGauges()

	return n
}

// Clear empties both tiers.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.primary.reset()
	c.secondary.reset()
	c.tags = make(map[string]map[string]struct{})
	c.updateGauges()
}

// Sweep removes entries past their deadline and demotes primary entries
// whose primary lifetime ended. It returns how many entries were removed.
func (c *Cache[V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for _, e := range c.primary.expiredEntries(now) {
		c.primary.remove(e)

		if now.Before(e.deadline) {
			c.demote(e)

			continue
		}

		c.drop(e)
		removed++
	}

	for _, e := range c.secondary.expiredEntries(now) {
		c.secondary.remove(e)
		c.drop(e)
		removed++
	}

	c.stats.Expirations += uint64(removed)
	c.updateGauges()

	return removed
}

// Len returns the number of entries in both tiers, live or not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.primary.len() + c.secondary.len()
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.PrimaryEntries = c.primary.len()
	s.SecondaryEntries = c.secondary.len()
	s.Tags = len(c.tags)

	return s
}

func (c *Cache[V]) lookup(key string) *entry[V] {
	if e, ok := c.primary.entries[key]; ok {
		return e
	}

	if e, ok := c.secondary.entries[key]; ok {
		return e
	}

	return nil
}

// unlink takes e out of whichever tier holds it.
func (c *Cache[V]) unlink(e *entry[V]) {
	if e.tier == primaryTier {
		c.primary.remove(e)
	} else {
		c.secondary.remove(e)
	}
}

// drop forgets the tags of an entry that is no longer in any tier.
func (c *Cache[V]) drop(e *entry[V]) {
	for _, tag := range e.tags {
		set := c.tags[tag]
		delete(set, e.key)

		if len(set) == 0 {
			delete(c.tags, tag)
		}
	}
}

func (c *Cache[V]) insertSecondary(e *entry[V]) {
	if c.secondary.full() {
		if v := c.secondary.victim(); v != nil {
			c.secondary.remove(v)
			c.drop(v)
			c.evicted(secondaryTier, v.priority)
		}
	}

	e.expiresAt = e.deadline
	c.secondary.add(e)
}

func (c *Cache[V]) insertPrimary(e *entry[V], now time.Time) {
	if c.primary.full() {
		if v := c.primary.victim(); v != nil {
			c.primary.remove(v)
			c.evicted(primaryTier, v.priority)

			if now.Before(v.deadline) {
				c.demote(v)
			} else {
				c.drop(v)
			}
		}
	}

	e.expiresAt = now.Add(c.primary.ttl)
	if e.deadline.Before(e.expiresAt) {
		e.expiresAt = e.deadline
	}

	c.primary.add(e)
}

// demote moves an entry that left the primary tier back into the secondary tier.
func (c *Cache[V]) demote(e *entry[V]) {
	e.hits = 0
	c.insertSecondary(e)
	c.stats.Demotions++
}

func (c *Cache[V]) invalidateLocked(tag string) int {
	keys := c.tags[tag]
	if len(keys) == 0 {
		return 0
	}

	n := 0

	for key := range keys {
		if e := c.lookup(key); e != nil {
			c.unlink(e)
			c.drop(e)
			n++
		}
	}

	delete(c.tags, tag)

	c.stats.Invalidations += uint64(n)
	c.metrics.CacheInvalidations.WithLabelValues(tagKind(tag)).Add(float64(n))

	return n
}

func (c *Cache[V]) hit(t tierID) {
	c.stats.Hits++

	if t == primaryTier {
		c.stats.PrimaryHits++
	} else {
		c.stats.SecondaryHits++
	}

	c.metrics.CacheRequests.WithLabelValues(t.String()).Inc()
}

func (c *Cache[V]) miss() {
	c.stats.Misses++
	c.metrics.CacheRequests.WithLabelValues("miss").Inc()
}

func (c *Cache[V]) evicted(t tierID, p Priority) {
	c.stats.Evictions++
	c.metrics.CacheEvictions.WithLabelValues(t.String(), p.String()).Inc()
}

func (c *Cache[V]) updateGauges() {
	c.metrics.CacheEntries.WithLabelValues(primaryTier.String()).Set(float64(c.primary.len()))
	c.metrics.CacheEntries.WithLabelValues(secondaryTier.String()).Set(float64(c.secondary.len()))
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		if _, ok := seen[tag]; ok {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}

func tagKind(tag string) string {
	if i := strings.IndexByte(tag, ':'); i > 0 {
		return tag[:i]
	}

	return "other"
}

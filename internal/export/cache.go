package export

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long an unclaimed artifact stays downloadable.
const DefaultTTL = 300 * time.Second

// ErrNotFound is returned by Get for unknown, consumed, or expired tokens.
var ErrNotFound = errors.New("export: entry not found")

// EvictionPolicy selects when an entry leaves the cache ahead of its TTL.
type EvictionPolicy int

const (
	// EvictOnExpiry leaves removal to the TTL sweep. Required by the
	// consent flow, where the entry must survive two reads: the offer and
	// the later upload.
	EvictOnExpiry EvictionPolicy = iota
	// EvictOnRead removes an entry on its first successful Get, making
	// direct download links single-use.
	EvictOnRead
)

// Entry is one cached artifact.
type Entry struct {
	Token       string
	Artifact    []byte
	Description string
	CreatedAt   time.Time
}

// Cache maps opaque tokens to built artifacts. It is shared across concurrent
// turn flows; a single mutex guards the whole map.
type Cache struct {
	policy EvictionPolicy
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(policy EvictionPolicy, opts ...CacheOption) *Cache {
	c := &Cache{
		policy:  policy,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores an artifact under a fresh token and returns the token. Expired
// entries are swept opportunistically on each Put.
func (c *Cache) Put(artifact []byte, description string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := newToken()
	c.entries[token] = Entry{
		Token:       token,
		Artifact:    artifact,
		Description: description,
		CreatedAt:   c.now(),
	}
	c.sweepLocked()
	return token
}

// Get returns the entry for a token, or ErrNotFound when the token is
// unknown or the entry has expired. Under EvictOnRead the entry is consumed
// by a successful read.
func (c *Cache) Get(token string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if c.expiredLocked(entry) {
		delete(c.entries, token)
		return Entry{}, ErrNotFound
	}
	if c.policy == EvictOnRead {
		delete(c.entries, token)
	}
	return entry, nil
}

// Delete removes an entry once it has been delivered.
func (c *Cache) Delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// Sweep removes every expired entry and returns the removal count.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() int {
	removed := 0
	for token, entry := range c.entries {
		if c.expiredLocked(entry) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

func (c *Cache) expiredLocked(entry Entry) bool {
	return !entry.CreatedAt.Add(c.ttl).After(c.now())
}

var newToken = func() string {
	return uuid.NewString()
}

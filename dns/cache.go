package dns

import (
	"context"
	"net"
	"sync"
	"time"
)

// CachedResolver is a read-through TTL cache in front of another
// Resolver. It is an explicitly injected dependency with its own policy,
// not shared module state, so concurrent analyses and tests stay
// isolated from each other.
//
// Only successful answers and NXDOMAIN are cached; transient failures
// always go back to the wire. A cached answer is indistinguishable from
// a fresh one to callers: it is re-parsed and cycle-checked by the
// flattener exactly the same way.
type CachedResolver struct {
	next Resolver
	ttl  time.Duration

	// now is replaceable for expiry tests.
	now func() time.Time

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

type cacheKey struct {
	qtype string // "txt", "ip", "mx"
	name  string // FQDN with trailing dot
}

type cacheEntry struct {
	txt      []string
	ips      []net.IP
	mxs      []MX
	notFound bool
	expires  time.Time
}

var _ Resolver = (*CachedResolver)(nil)

// NewCachedResolver wraps next with a cache holding answers for ttl.
// A zero ttl defaults to 5 minutes.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// lookup returns a live cache entry, if any.
func (c *CachedResolver) lookup(key cacheKey) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (c *CachedResolver) store(key cacheKey, e cacheEntry) {
	e.expires = c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// LookupTXT serves TXT answers through the cache.
func (c *CachedResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	key := cacheKey{"txt", ensureAbsolute(name)}
	if e, ok := c.lookup(key); ok {
		if e.notFound {
			return nil, ErrNotFound
		}
		return e.txt, nil
	}

	records, err := c.next.LookupTXT(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			c.store(key, cacheEntry{notFound: true})
		}
		return nil, err
	}
	c.store(key, cacheEntry{txt: records})
	return records, nil
}

// LookupIP serves A/AAAA answers through the cache.
func (c *CachedResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	key := cacheKey{"ip", ensureAbsolute(host)}
	if e, ok := c.lookup(key); ok {
		if e.notFound {
			return nil, ErrNotFound
		}
		return e.ips, nil
	}

	ips, err := c.next.LookupIP(ctx, host)
	if err != nil {
		if IsNotFound(err) {
			c.store(key, cacheEntry{notFound: true})
		}
		return nil, err
	}
	c.store(key, cacheEntry{ips: ips})
	return ips, nil
}

// LookupMX serves MX answers through the cache.
func (c *CachedResolver) LookupMX(ctx context.Context, name string) ([]MX, error) {
	key := cacheKey{"mx", ensureAbsolute(name)}
	if e, ok := c.lookup(key); ok {
		if e.notFound {
			return nil, ErrNotFound
		}
		return e.mxs, nil
	}

	mxs, err := c.next.LookupMX(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			c.store(key, cacheEntry{notFound: true})
		}
		return nil, err
	}
	c.store(key, cacheEntry{mxs: mxs})
	return mxs, nil
}

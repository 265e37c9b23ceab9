package anomaly

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

// Fingerprint is a SHA-256 digest of the dataset content in record order.
// Two datasets with equal fingerprints aggregate to identical baselines.
func Fingerprint(ds domain.Dataset) string {
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, r := range ds {
		buf = buf[:0]
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.City)))
		buf = append(buf, r.City...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(r.Timestamp.UnixNano()))
		buf = append(buf, r.Season...)
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(r.Temperature))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BaselineCache memoizes Aggregate by dataset fingerprint.
type BaselineCache struct {
	cache   *lruCache
	metrics *observability.Metrics
}

// NewBaselineCache creates a cache holding at most maxEntries tables.
func NewBaselineCache(maxEntries int, metrics *observability.Metrics) *BaselineCache {
	return &BaselineCache{
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Get returns the baselines for ds, aggregating on a miss. Failed
// aggregations are not cached.
func (c *BaselineCache) Get(ds domain.Dataset) (*Baselines, error) {
	fp := Fingerprint(ds)
	if b, ok := c.cache.get(fp); ok {
		c.metrics.BaselineCache.WithLabelValues("hit").Inc()
		return b, nil
	}
	c.metrics.BaselineCache.WithLabelValues("miss").Inc()

	b, err := aggregate(ds, fp)
	if err != nil {
		return nil, err
	}
	c.cache.put(fp, b)
	return b, nil
}

// Len is the number of cached tables.
func (c *BaselineCache) Len() int {
	return c.cache.size()
}

// lruCache is a thread-safe LRU cache of baseline tables.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *Baselines
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*Baselines, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *Baselines) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

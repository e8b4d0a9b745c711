package planner

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/brunoga/deep"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"aerialplan/internal/pattern"
)

// Cache memoises plan results by request content and origin generation.
// Results are deep-copied in and out so callers may modify what they get.
type Cache struct {
	lru *expirable.LRU[uint64, Result]
}

// NewCache returns a cache holding at most size results for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{lru: expirable.NewLRU[uint64, Result](size, nil, ttl)}
}

// CacheKey hashes everything a plan depends on. Requests carrying a
// programmatic terrain model cannot be hashed and report false.
func CacheKey(req Request, s Settings, generation uint64) (uint64, bool) {
	if sv, ok := req.Pattern.Params.(pattern.SurveyParams); ok && sv.Terrain != nil {
		return 0, false
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return 0, false
	}
	setJSON, err := json.Marshal(s)
	if err != nil {
		return 0, false
	}
	d := xxhash.New()
	_, _ = d.Write(reqJSON)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(setJSON)
	var gen [8]byte
	binary.LittleEndian.PutUint64(gen[:], generation)
	_, _ = d.Write(gen[:])
	return d.Sum64(), true
}

func (c *Cache) Get(key uint64) (Result, bool) {
	if c == nil {
		return Result{}, false
	}
	res, ok := c.lru.Get(key)
	if !ok {
		return Result{}, false
	}
	return deep.MustCopy(res), true
}

func (c *Cache) Add(key uint64, res Result) {
	if c == nil {
		return
	}
	c.lru.Add(key, deep.MustCopy(res))
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

package odoo

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var readMethods = map[string]struct{}{
	"search":       {},
	"search_read":  {},
	"search_count": {},
	"read":         {},
	"read_group":   {},
	"fields_get":   {},
	"name_get":     {},
	"name_search":  {},
}

// IsReadMethod reports whether method only reads data and may be cached.
func IsReadMethod(method string) bool {
	_, ok := readMethods[method]
	return ok
}

// ReadCache keeps results of read methods for a fixed TTL. Any other call on
// a model drops that model's entries.
type ReadCache struct {
	lru *expirable.LRU[string, interface{}]
}

func NewReadCache(size int, ttl time.Duration) *ReadCache {
	if size <= 0 {
		size = 512
	}
	return &ReadCache{lru: expirable.NewLRU[string, interface{}](size, nil, ttl)}
}

func cacheKey(model, method string, args []interface{}, kwargs map[string]interface{}) (string, bool) {
	a, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	k, err := json.Marshal(kwargs)
	if err != nil {
		return "", false
	}
	return model + "\x00" + method + "\x00" + string(a) + "\x00" + string(k), true
}

func (c *ReadCache) Get(model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, bool) {
	if c == nil || !IsReadMethod(method) {
		return nil, false
	}
	key, ok := cacheKey(model, method, args, kwargs)
	if !ok {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *ReadCache) Put(model, method string, args []interface{}, kwargs map[string]interface{}, value interface{}) {
	if c == nil || !IsReadMethod(method) {
		return
	}
	if key, ok := cacheKey(model, method, args, kwargs); ok {
		c.lru.Add(key, value)
	}
}

// InvalidateModel removes every cached result for model.
func (c *ReadCache) InvalidateModel(model string) int {
	if c == nil {
		return 0
	}
	prefix := model + "\x00"
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) && c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

func (c *ReadCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *ReadCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

package cache

import (
	"sync"
	"time"
)

type GenericCache struct {
	defaultTTL time.Duration
	store      sync.Map
	parent     Cache
	janitor    *janitor
}

func New(defaultTTL, cleanupInterval time.Duration, parent Cache) Cache {
	c := &GenericCache{
		defaultTTL: defaultTTL,
		parent:     parent,
	}

	if cleanupInterval > 0 {
		c.janitor = runJanitor(c, cleanupInterval)
	}

	return c
}

func (c *GenericCache) Get(key string) (interface{}, bool) {
	val, ok := c.store.Load(key)
	if ok {
		item := val.(item)
		if !item.Expired() {
			return item.Value, true
		}
		c.store.Delete(key)
	}

	if c.parent != nil {
		return c.parent.Get(key)
	}

	return nil, false
}

func (c *GenericCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, DefaultExpiration)
}

func (c *GenericCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	var expires int64
	if ttl == DefaultExpiration {
		ttl = c.defaultTTL
	}
	if ttl > 0 {
		expires = time.Now().Add(ttl).UnixNano()
	}
	c.store.Store(key, item{
		Value:      value,
		Expiration: expires,
	})
}

func (c *GenericCache) Delete(k string) {
	c.store.Delete(k)
}

func (c *GenericCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *GenericCache) Keys() []string {
	var keys []string
	c.store.Range(func(key, value interface{}) bool {
		item := value.(item)
		if !item.Expired() {
			if kStr, ok := key.(string); ok {
				keys = append(keys, kStr)
			}
		}
		return true
	})
	return keys
}

func (c *GenericCache) Count() int {
	count := 0
	c.store.Range(func(key, value interface{}) bool {
		item := value.(item)
		if !item.Expired() {
			count++
		}
		return true
	})
	return count
}

func (c *GenericCache) Flush() {
	c.store = sync.Map{}
}

func (c *GenericCache) GetOrSet(k string, v interface{}) (interface{}, bool) {
	existing, ok := c.store.Load(k)
	if ok {
		item := existing.(item)
		if !item.Expired() {
			return item.Value, true
		}
	}

	var expires int64
	if c.defaultTTL > 0 {
		expires = time.Now().Add(c.defaultTTL).UnixNano()
	}
	newItem := item{Value: v, Expiration: expires}

	actualItem, loaded := c.store.LoadOrStore(k, newItem)
	if loaded {
		return actualItem.(item).Value, true
	}

	return newItem.Value, false
}

// GetTime is a typed convenience wrapper around Get, used by the status
// renderer to read back cached submit/start/end timestamps.
func (c *GenericCache) GetTime(k string) (time.Time, bool) {
	v, ok := c.Get(k)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func (c *GenericCache) Range(f func(key string, value interface{}) bool) {
	c.store.Range(func(key, value interface{}) bool {
		kStr, ok := key.(string)
		if !ok {
			return true
		}

		item, ok := value.(item)
		if !ok || item.Expired() {
			return true
		}

		return f(kStr, item.Value)
	})
}

// Close stops the background janitor sweep, if one was started. A cache
// built with cleanupInterval <= 0 (see New) has no janitor and Close is a
// no-op.
func (c *GenericCache) Close() {
	stopJanitor(c)
}

func (c *GenericCache) deleteExpired() {
	c.store.Range(func(key, value interface{}) bool {
		item := value.(item)
		if item.Expired() {
			c.store.Delete(key)
		}
		return true
	})
}

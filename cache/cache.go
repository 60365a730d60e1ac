// Package cache holds recently served batches and chain lookups so the API
// does not hit the archive for every request.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Key is a namespaced cache key. The blob and batch entries for one hash
// share the LRU, so each entry kind carries its own prefix.
type Key string

func BlobKey(blobHash string) Key {
	return Key("blob:" + blobHash)
}

func BatchKey(blobHash string) Key {
	return Key("batch:" + blobHash)
}

type Cache interface {
	Get(key Key) (interface{}, bool)
	Set(key Key, value interface{})
}

const DefaultCacheSize = 1024

type LocalCache struct {
	*lru.Cache
}

func NewLocalCache(size uint64) (Cache, error) {
	inner, err := lru.New(int(size))
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		inner,
	}, nil
}

func (c *LocalCache) Get(key Key) (interface{}, bool) {
	return c.Cache.Get(key)
}

func (c *LocalCache) Set(key Key, value interface{}) {
	c.Cache.Add(key, value)
}

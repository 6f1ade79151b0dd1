package scene

import (
	"image"
	"sync"
)

// Cache keeps scene images in process, keyed by session id or daily key.
// Images are not part of the session store; a missing entry only means the
// overlay endpoint has nothing to draw.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
	order  []string
	limit  int
}

// NewCache returns a cache holding at most limit images (oldest evicted first).
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = 256
	}
	return &Cache{images: make(map[string]image.Image), limit: limit}
}

func (c *Cache) Put(key string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[key]; !ok {
		c.order = append(c.order, key)
	}
	c.images[key] = img
	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.images, oldest)
	}
}

func (c *Cache) Get(key string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[key]
	return img, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

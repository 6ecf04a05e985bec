package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyListPrefix = "task:list:"
	// keyListGen is bumped on every write; pages are stored under the
	// generation they were read at, so a page read before a write is never
	// served after it.
	keyListGen = "task:listgen"
)

// TaskCache caches task list pages in Redis.
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache returns a new TaskCache.
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

func listKey(gen int64, offset, limit int) string {
	return keyListPrefix + strconv.FormatInt(gen, 10) + ":" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
}

// Generation returns the current list generation (0 before the first write).
func (c *TaskCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, keyListGen).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetList returns the page cached for gen or nil on a miss.
func (c *TaskCache) GetList(ctx context.Context, gen int64, offset, limit int) ([]dom.Task, error) {
	b, err := c.rdb.Get(ctx, listKey(gen, offset, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list := make([]dom.Task, 0)
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SetList stores a page read at generation gen.
func (c *TaskCache) SetList(ctx context.Context, gen int64, offset, limit int, list []dom.Task) error {
	if list == nil {
		list = []dom.Task{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, listKey(gen, offset, limit), b, c.ttl).Err()
}

// InvalidateAll bumps the generation and drops every cached page (cache
// invalidation on write).
func (c *TaskCache) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, keyListGen).Err(); err != nil {
		return err
	}
	iter := c.rdb.Scan(ctx, 0, keyListPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

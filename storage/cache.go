package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-service/domain"
)

var errStale = errors.New("cache generation changed")

// generationTTL bounds how long an idle generation counter is kept.
const generationTTL = 24 * time.Hour

// Cache wraps a record store with Redis-backed caching of sibling lists and
// memberships. Writes go to the base store first and then evict.
//
// Every cached key has a generation counter that writers bump. A reader only
// stores what it loaded if the generation is unchanged, so a slow reader
// cannot put back a list that a concurrent write already invalidated.
type Cache struct {
	domain.Storage
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base domain.Storage, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Storage: base, redis: client, ttl: ttl}
}

func columnsCacheKey(boardID string) string { return "columns:" + boardID }

func tasksCacheKey(boardID, columnID string) string { return "tasks:" + boardID + ":" + columnID }

func memberCacheKey(boardID, userID string) string { return "member:" + boardID + ":" + userID }

func genKey(key string) string { return "gen:" + key }

func (c *Cache) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	key := columnsCacheKey(boardID)
	var cols []domain.Column
	if c.load(ctx, key, &cols) {
		return cols, nil
	}
	gen := c.generation(ctx, key)
	cols, err := c.Storage.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, gen, cols)
	return cols, nil
}

func (c *Cache) ListTasks(ctx context.Context, boardID, columnID string) ([]domain.Task, error) {
	key := tasksCacheKey(boardID, columnID)
	var tasks []domain.Task
	if c.load(ctx, key, &tasks) {
		return tasks, nil
	}
	gen := c.generation(ctx, key)
	tasks, err := c.Storage.ListTasks(ctx, boardID, columnID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, gen, tasks)
	return tasks, nil
}

// GetMember caches memberships; missing members are not cached.
func (c *Cache) GetMember(ctx context.Context, boardID, userID string) (*domain.Member, error) {
	key := memberCacheKey(boardID, userID)
	var m domain.Member
	if c.load(ctx, key, &m) {
		return &m, nil
	}
	gen := c.generation(ctx, key)
	found, err := c.Storage.GetMember(ctx, boardID, userID)
	if err != nil || found == nil {
		return found, err
	}
	c.store(ctx, key, gen, found)
	return found, nil
}

func (c *Cache) InsertColumn(ctx context.Context, col domain.Column) error {
	if err := c.Storage.InsertColumn(ctx, col); err != nil {
		return err
	}
	c.evict(ctx, columnsCacheKey(col.BoardID))
	return nil
}

func (c *Cache) UpdateColumn(ctx context.Context, col domain.Column) error {
	if err := c.Storage.UpdateColumn(ctx, col); err != nil {
		return err
	}
	c.evict(ctx, columnsCacheKey(col.BoardID))
	return nil
}

func (c *Cache) DeleteColumn(ctx context.Context, boardID, id string) error {
	if err := c.Storage.DeleteColumn(ctx, boardID, id); err != nil {
		return err
	}
	c.evict(ctx, columnsCacheKey(boardID), tasksCacheKey(boardID, id))
	return nil
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.Storage.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(t.BoardID, t.ColumnID))
	return nil
}

// UpdateTask also evicts the task's previous column when the task moved.
func (c *Cache) UpdateTask(ctx context.Context, t domain.Task) error {
	prev, err := c.Storage.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := c.Storage.UpdateTask(ctx, t); err != nil {
		return err
	}
	keys := []string{tasksCacheKey(t.BoardID, t.ColumnID)}
	if prev != nil && prev.ColumnID != t.ColumnID {
		keys = append(keys, tasksCacheKey(prev.BoardID, prev.ColumnID))
	}
	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, boardID, id string) error {
	prev, err := c.Storage.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Storage.DeleteTask(ctx, boardID, id); err != nil {
		return err
	}
	if prev != nil {
		c.evict(ctx, tasksCacheKey(prev.BoardID, prev.ColumnID))
	}
	return nil
}

func (c *Cache) InsertMember(ctx context.Context, m domain.Member) error {
	if err := c.Storage.InsertMember(ctx, m); err != nil {
		return err
	}
	c.evict(ctx, memberCacheKey(m.BoardID, m.UserID))
	return nil
}

func (c *Cache) UpdateMember(ctx context.Context, m domain.Member) error {
	if err := c.Storage.UpdateMember(ctx, m); err != nil {
		return err
	}
	c.evict(ctx, memberCacheKey(m.BoardID, m.UserID))
	return nil
}

func (c *Cache) DeleteMember(ctx context.Context, boardID, userID string) error {
	if err := c.Storage.DeleteMember(ctx, boardID, userID); err != nil {
		return err
	}
	c.evict(ctx, memberCacheKey(boardID, userID))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) generation(ctx context.Context, key string) int64 {
	if c.redis == nil {
		return 0
	}
	gen, err := c.redis.Get(ctx, genKey(key)).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (c *Cache) store(ctx context.Context, key string, gen int64, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(key)).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey(key))
	if err != nil && !errors.Is(err, errStale) && !errors.Is(err, redis.TxFailedErr) {
		log.WithError(err).WithField("key", key).Debug("cache store failed")
	}
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Incr(ctx, genKey(k))
			p.Expire(ctx, genKey(k), generationTTL)
			p.Del(ctx, k)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("keys", keys).Warn("cache eviction failed")
	}
}

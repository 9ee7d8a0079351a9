package question

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/raindrop/internal/domain"
)

// Cache is a read-through Redis cache in front of another Bank.
// Question documents are stored as JSON strings under <prefix>:question:<id>.
// Pool listings always go to the backing bank since questions may be deactivated at any time.
type Cache struct {
	bank   Bank
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	sf     singleflight.Group
}

type CacheConfig struct {
	Bank   Bank
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

func NewCache(c CacheConfig) *Cache {
	return &Cache{
		bank:   c.Bank,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
}

func (c *Cache) ListIDs(ctx context.Context, f Filter) ([]string, error) {
	return c.bank.ListIDs(ctx, f)
}

func (c *Cache) Get(ctx context.Context, ids ...string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, missing := c.lookup(ctx, ids)
	if len(missing) > 0 {
		v, err, _ := c.sf.Do(strings.Join(missing, ","), func() (any, error) {
			qs, err := c.bank.Get(ctx, missing...)
			if err != nil {
				return nil, err
			}
			c.fill(ctx, qs)
			return qs, nil
		})
		if err != nil {
			return nil, err
		}
		for _, q := range v.([]domain.Question) {
			found[q.QuestionID] = q
		}
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, found[id])
	}
	return out, nil
}

// lookup never fails; a Redis error degrades to a full miss.
func (c *Cache) lookup(ctx context.Context, ids []string) (map[string]domain.Question, []string) {
	found := make(map[string]domain.Question, len(ids))

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}

	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		slog.WarnContext(ctx, "question: cache lookup failed", "error", err)
		return found, ids
	}

	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = q
	}
	return found, missing
}

func (c *Cache) fill(ctx context.Context, qs []domain.Question) {
	pipe := c.redis.Pipeline()
	for _, q := range qs {
		b, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(q.QuestionID), b, c.ttlWithJitter())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "question: cache fill failed", "error", err)
	}
}

func (c *Cache) key(id string) string {
	return fmt.Sprintf("%s:question:%s", c.prefix, id)
}

func (c *Cache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl + time.Duration(rand.Int64N(int64(c.ttl)/10+1))
}

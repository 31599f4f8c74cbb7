package domaininfo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"pkhunter/models"
)

const cacheKeyPrefix = "pkhunter:whois:"

// Cache stores successful lookups per registrable domain.
type Cache interface {
	Get(ctx context.Context, domain string) (models.DomainInfo, bool)
	Set(ctx context.Context, domain string, info models.DomainInfo)
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (models.DomainInfo, bool) { return models.DomainInfo{}, false }
func (NopCache) Set(context.Context, string, models.DomainInfo)        {}

// RedisCache Redis 缓存 WHOIS 结果
// Cache failures are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *RedisCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log.WithField("component", "whois-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, domain string) (models.DomainInfo, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+domain).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("cache read failed")
		}
		return models.DomainInfo{}, false
	}

	var info models.DomainInfo
	if err := json.Unmarshal(data, &info); err != nil {
		c.log.WithError(err).Warn("cache entry corrupt")
		return models.DomainInfo{}, false
	}
	return info, true
}

func (c *RedisCache) Set(ctx context.Context, domain string, info models.DomainInfo) {
	if !info.LookupOK {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+domain, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("cache write failed")
	}
}

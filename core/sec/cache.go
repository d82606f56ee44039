package sec

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/siherrmann/filingqa/helper"
)

// CompanyTicker is one entry of the SEC company ticker file.
type CompanyTicker struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// TickerCache stores the ticker map keyed by upper-case ticker. Get
// reports false when nothing is cached or the entry expired.
type TickerCache interface {
	Get(ctx context.Context) (map[string]CompanyTicker, bool, error)
	Set(ctx context.Context, tickers map[string]CompanyTicker) error
}

var (
	_ TickerCache = (*MemoryTickerCache)(nil)
	_ TickerCache = (*RedisTickerCache)(nil)
)

type MemoryTickerCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	tickers  map[string]CompanyTicker
	storedAt time.Time
}

// NewMemoryTickerCache keeps the map in process. A non-positive ttl never expires.
func NewMemoryTickerCache(ttl time.Duration) *MemoryTickerCache {
	return &MemoryTickerCache{ttl: ttl}
}

func (c *MemoryTickerCache) Get(ctx context.Context) (map[string]CompanyTicker, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tickers == nil {
		return nil, false, nil
	}
	if c.ttl > 0 && time.Since(c.storedAt) > c.ttl {
		return nil, false, nil
	}
	return c.tickers, true, nil
}

func (c *MemoryTickerCache) Set(ctx context.Context, tickers map[string]CompanyTicker) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tickers = tickers
	c.storedAt = time.Now()
	return nil
}

const redisTickerKey = "filingqa:sec:company_tickers"

// RedisTickerCache shares the ticker map between processes.
type RedisTickerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTickerCache(config helper.RedisConfiguration) *RedisTickerCache {
	return &RedisTickerCache{
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
		ttl: config.TTL,
	}
}

func (c *RedisTickerCache) Get(ctx context.Context) (map[string]CompanyTicker, bool, error) {
	data, err := c.client.Get(ctx, redisTickerKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, helper.NewError("redis get", err)
	}

	var tickers map[string]CompanyTicker
	if err := json.Unmarshal(data, &tickers); err != nil {
		return nil, false, helper.NewError("decode cached tickers", err)
	}
	return tickers, true, nil
}

func (c *RedisTickerCache) Set(ctx context.Context, tickers map[string]CompanyTicker) error {
	data, err := json.Marshal(tickers)
	if err != nil {
		return helper.NewError("encode tickers", err)
	}

	err = c.client.Set(ctx, redisTickerKey, data, c.ttl).Err()
	if err != nil {
		return helper.NewError("redis set", err)
	}
	return nil
}

func (c *RedisTickerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTickerCache) Close() error {
	return c.client.Close()
}

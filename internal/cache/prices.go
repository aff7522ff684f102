package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache keeps the latest observed market price per ticker so a cycle
// can still evaluate open signals when an instrument's fetch fails.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	return &PriceCache{client: client, ttl: ttl}
}

func priceKey(ticker string) string {
	return "price:" + ticker
}

func (c *PriceCache) SetPrices(ctx context.Context, prices map[string]float64) error {
	if c == nil || c.client == nil || len(prices) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for ticker, price := range prices {
		pipe.Set(ctx, priceKey(ticker), strconv.FormatFloat(price, 'f', -1, 64), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *PriceCache) GetPrice(ctx context.Context, ticker string) (float64, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}
	raw, err := c.client.Get(ctx, priceKey(ticker)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached price for %s: %w", ticker, err)
	}
	return price, true, nil
}

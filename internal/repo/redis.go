package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// cartCache кэш собранной корзины; источник истины всегда Postgres.
type cartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCartCache(client *redis.Client, ttl time.Duration) *cartCache {
	return &cartCache{client: client, baseTTL: ttl}
}

func (c *cartCache) Get(ctx context.Context, owner entities.CartOwner) (entities.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entities.Cart{}, ErrCacheMiss
	}
	if err != nil {
		return entities.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cart entities.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return entities.Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return cart, nil
}

func (c *cartCache) Set(ctx context.Context, cart entities.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := c.baseTTL
	if ttl > time.Minute {
		ttl += time.Duration(rand.IntN(5)) * time.Minute
	}
	if err := c.client.Set(ctx, cartKey(cart.Owner), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *cartCache) Delete(ctx context.Context, owners ...entities.CartOwner) error {
	if len(owners) == 0 {
		return nil
	}
	keys := make([]string, len(owners))
	for i, o := range owners {
		keys[i] = cartKey(o)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(owner entities.CartOwner) string {
	return "cart:" + owner.Key()
}

// освобождаем только свой замок
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ownerLocker не даёт одному покупателю запустить два checkout/merge одновременно.
type ownerLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOwnerLocker(client *redis.Client, ttl time.Duration) *ownerLocker {
	return &ownerLocker{client: client, ttl: ttl}
}

// Lock возвращает ErrCheckoutInProgress, если замок уже занят.
func (l *ownerLocker) Lock(ctx context.Context, owner entities.CartOwner) (func(), error) {
	key := "lock:cart:" + owner.Key()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, entities.ErrCheckoutInProgress
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return unlock, nil
}

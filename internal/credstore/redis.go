package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lenscart/lenscart/internal/errs"
)

// Redis is a Store backed by a shared Redis instance, letting several
// client processes (kiosk terminals, a point-of-sale companion) share
// one session. Logout in any process is observed by the others through
// the polling Watch.
type Redis struct {
	rdb      *redis.Client
	key      string
	interval time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis returns a redis-backed store. prefix namespaces the key;
// interval is the Watch poll period.
func NewRedis(rdb *redis.Client, prefix string, interval time.Duration) *Redis {
	if prefix == "" {
		prefix = "lenscart"
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Redis{rdb: rdb, key: prefix + ":credentials", interval: interval}
}

func (r *Redis) Load(ctx context.Context) (Credentials, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credentials{}, errs.ErrNoCredentials
		}
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, err
	}
	if c.Empty() {
		return Credentials{}, errs.ErrNoCredentials
	}
	return c, nil
}

func (r *Redis) Save(ctx context.Context, c Credentials) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, b, 0).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

func (r *Redis) Watch(ctx context.Context) <-chan Credentials {
	return pollWatch(ctx, r.interval, r.Load)
}

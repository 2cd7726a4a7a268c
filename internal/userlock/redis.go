package userlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL    = 30 * time.Second
	DefaultWait   = 10 * time.Second
	DefaultPrefix = "rapport:lock:"
)

var errBusy = errors.New("lock held")

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type RedisOptions struct {
	Prefix string
	// TTL bounds how long a crashed holder can block the user. A live
	// holder renews it until release.
	TTL time.Duration
	// RenewEvery is the lease renewal interval, TTL/3 by default.
	RenewEvery time.Duration
	// Wait bounds how long Lock polls before ErrLockTimeout.
	Wait time.Duration
}

// Redis is a Locker shared by every replica.
type Redis struct {
	client     redis.UniversalClient
	opts       RedisOptions
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

func NewRedis(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RenewEvery <= 0 || opts.RenewEvery >= opts.TTL {
		opts.RenewEvery = opts.TTL / 3
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	return &Redis{
		client: client,
		opts:   opts,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
	}
}

func (r *Redis) key(userID string) string {
	return r.opts.Prefix + userID
}

func (r *Redis) Lock(ctx context.Context, userID string) (func(), error) {
	key := r.key(userID)
	token := uuid.NewString()

	acquire := func() (struct{}, error) {
		ok, err := r.client.SetNX(ctx, key, token, r.opts.TTL).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("set lock: %w", err))
		}
		if !ok {
			return struct{}{}, errBusy
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, acquire,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxElapsedTime(r.opts.Wait),
	)
	if err != nil {
		if errors.Is(err, errBusy) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, userID)
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(key, userID, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("failed to release user lock", "user_id", userID, "error", err)
			}
		})
	}, nil
}

// renew extends the lease every RenewEvery until stop is closed or the lock
// turns out to belong to someone else.
func (r *Redis) renew(key, userID, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.opts.RenewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.RenewEvery)
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.opts.TTL.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Warn("failed to renew user lock", "user_id", userID, "error", err)
				continue
			}
			if n == 0 {
				r.logger.Warn("user lock lost before release", "user_id", userID)
				return
			}
		}
	}
}

// internal/lock/redis.go
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"mentor-points/internal/metrics"
	"mentor-points/internal/util"
)

const (
	redisKeyPrefix   = "points:lock:"
	redisRetryDelay  = 10 * time.Millisecond
	defaultLeaseTime = 30 * time.Second
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lease never releases another holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every process pointing at the same Redis.
type RedisLocker struct {
	client  *redis.Client
	timeout time.Duration
	lease   time.Duration
	logger  *slog.Logger
}

// RedisOptions configures a RedisLocker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	Lease    time.Duration
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedisLocker wraps an existing client.
func NewRedisLocker(client *redis.Client, timeout, lease time.Duration, logger *slog.Logger) *RedisLocker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if lease <= 0 {
		lease = defaultLeaseTime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, timeout: timeout, lease: lease, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, owner string) (func(), error) {
	start := time.Now()
	key := redisKeyPrefix + owner
	token := uuid.NewString()
	deadline := start.Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock for owner %q: %w", owner, err)
		}
		if ok {
			metrics.LockWait.WithLabelValues("redis").Observe(time.Since(start).Seconds())
			return l.releaser(key, token), nil
		}
		if time.Now().After(deadline) {
			metrics.LockTimeouts.WithLabelValues("redis").Inc()
			return nil, util.ErrAccountLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's ctx may already be cancelled; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release owner lock", "key", key, "error", err)
		}
	}
}

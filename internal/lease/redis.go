package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pagemark:lease:"

// Redis implements Locker using SET NX with a TTL. Each instance has a unique
// owner id so one process cannot release another's lease.
type Redis struct {
	client  *redis.Client
	ownerID string
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis-backed locker with a fresh owner id.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ownerID: generateOwnerID()}
}

// DialRedis parses a redis:// URL and checks the server is reachable, retrying
// the ping with backoff while the server starts up.
func DialRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	for attempt := 0; ; attempt++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			return NewRedis(client), nil
		}
		if attempt >= maxDialRetries {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	client.Close()
	return nil, fmt.Errorf("ping redis: %w", err)
}

const maxDialRetries = 3

// backoff returns the wait before retry n (0-indexed) with jitter.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	if base > 5*time.Second {
		base = 5 * time.Second
	}
	jitter := time.Duration(mathrand.Int64N(int64(base) / 2))
	return base + jitter
}

// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

func (l *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *Redis) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *Redis) Extend(ctx context.Context, name string, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", name, err)
	}
	if result == 0 {
		return fmt.Errorf("lease %s not held by this instance", name)
	}
	return nil
}

// OwnerID identifies this instance in Redis.
func (l *Redis) OwnerID() string {
	return l.ownerID
}

// Close closes the underlying client.
func (l *Redis) Close() error {
	return l.client.Close()
}

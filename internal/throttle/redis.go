package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tycoon/internal/game"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

const retryEvery = 25 * time.Millisecond

// RedisClient is the subset of redis.Cmdable used by the lock.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a Locker shared by every process talking to the same Redis.
type Redis struct {
	client RedisClient
	prefix string
	log    *slog.Logger
}

func NewRedis(client RedisClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: "tycoon:lock:company:", log: logger}
}

func (r *Redis) key(companyID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, companyID)
}

func (r *Redis) WithCompanyLock(ctx context.Context, companyID int64, maxHold, maxWait time.Duration, fn func(ctx context.Context) error) error {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if maxHold <= 0 {
		maxHold = DefaultMaxHold
	}
	key := r.key(companyID)
	token := uuid.NewString()
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, maxHold).Result()
		if err != nil {
			r.log.Error("company lock redis error", "company_id", companyID, "err", err)
		}
		if ok {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return game.ErrLockTimeout
		}
		if err := sleepWithContext(ctx, min(retryEvery, remaining)); err != nil {
			return err
		}
	}

	defer func() {
		// Release with a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			r.log.Warn("company lock release failed", "company_id", companyID, "err", err)
		}
	}()

	holdCtx, cancel := context.WithTimeout(ctx, maxHold)
	defer cancel()
	return fn(holdCtx)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

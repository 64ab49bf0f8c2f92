package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const jobLockKeyPrefix = "creatorpay:job-lock:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisJobLock gives one replica at a time the right to run a scheduled job
type RedisJobLock struct {
	client *redis.Client
}

// NewRedisJobLock creates a job lock backed by client
func NewRedisJobLock(client *redis.Client) *RedisJobLock {
	return &RedisJobLock{client: client}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.WithField("addr", addr).Info("Connected to Redis")
	return client, nil
}

// TryAcquire takes the named lock for ttl. acquired is false when another holder has it.
// The returned release is a no-op once the ttl has passed and someone else took over.
func (l *RedisJobLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error) {
	key := jobLockKeyPrefix + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire job lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.WithFields(log.Fields{
				"lock":  name,
				"error": err,
			}).Warn("Failed to release job lock")
		}
	}
	return release, true, nil
}

// LocalJobLock is the single-instance fallback used when no Redis address is configured
type LocalJobLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalJobLock creates an in-process job lock
func NewLocalJobLock() *LocalJobLock {
	return &LocalJobLock{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

// TryAcquire takes the named lock for ttl unless it is already held and unexpired
func (l *LocalJobLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiresAt, ok := l.held[name]; ok && now.Before(expiresAt) {
		return nil, false, nil
	}
	expiresAt := now.Add(ttl)
	l.held[name] = expiresAt

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(expiresAt) {
			delete(l.held, name)
		}
	}, true, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProjectLocker serializes the admission check and write described in
// the design's concurrency section: "The admission check and the
// write must be serialized per project." Lock blocks until it obtains
// the lock or ctx is done, and returns a function that releases it.
type ProjectLocker interface {
	Lock(ctx context.Context, projectID uuid.UUID) (unlock func(), err error)
}

// MemProjectLocker is an in-process ProjectLocker backed by one
// mutex per project id, suitable for a single-process deployment or
// for tests. It never blocks past ctx's deadline.
type MemProjectLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewMemProjectLocker returns an empty MemProjectLocker.
func NewMemProjectLocker() *MemProjectLocker {
	return &MemProjectLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

var _ ProjectLocker = (*MemProjectLocker)(nil)

func (l *MemProjectLocker) projectMutex(projectID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	return m
}

func (l *MemProjectLocker) Lock(ctx context.Context, projectID uuid.UUID) (func(), error) {
	m := l.projectMutex(projectID)
	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine above still holds (or will hold) m; this
		// second goroutine waits for that and releases m, since
		// nobody else can.
		go func() { <-acquired; m.Unlock() }()
		return nil, ctx.Err()
	}
}

// RedisProjectLocker implements ProjectLocker on top of
// github.com/redis/go-redis/v9: a thin client and a namespaced key;
// only the release call runs under its own short timeout. The lock is
// a SET NX EX holding a random token,
// released by a compare-and-delete script so a locker only ever
// releases the lock it acquired.
type RedisProjectLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProjectLocker creates a RedisProjectLocker connected to
// addr (e.g. "localhost:6379"). ttl bounds how long a lock survives a
// crashed holder; it should comfortably exceed the time an admission
// check plus write takes.
func NewRedisProjectLocker(addr string, ttl time.Duration) *RedisProjectLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisProjectLocker{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

var _ ProjectLocker = (*RedisProjectLocker)(nil)

func (l *RedisProjectLocker) key(projectID uuid.UUID) string {
	return "scheduler:lock:project:" + projectID.String()
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

func (l *RedisProjectLocker) Lock(ctx context.Context, projectID uuid.UUID) (func(), error) {
	token := uuid.NewString()
	key := l.key(projectID)

	const retryDelay = 25 * time.Millisecond
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire project lock: %w", err)
		}
		if ok {
			unlock := func() {
				unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				l.client.Eval(unlockCtx, releaseScript, []string{key}, token)
			}
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Close releases the underlying Redis client connection.
func (l *RedisProjectLocker) Close() error {
	return l.client.Close()
}

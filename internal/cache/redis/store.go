package redis

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"farmScope/internal/cache"
	"farmScope/internal/model"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// Store keeps each collection in one Redis hash. Put replaces the hash inside
// MULTI/EXEC so HGETALL never observes a partially written collection.
type Store struct {
	client *goredis.Client
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	redisOpts := &goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.TLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := goredis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &model.TransportError{Op: "redis ping", Err: err}
	}
	return &Store{client: client}, nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func committedKey(key string) string {
	return key + ":committed_at"
}

func (s *Store) Put(ctx context.Context, key string, entries map[string]json.RawMessage) error {
	values := make(map[string]interface{}, len(entries))
	for field, raw := range entries {
		values[field] = string(raw)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		pipe.Set(ctx, committedKey(key), time.Now().UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return &model.TransportError{Op: "redis replace " + key, Err: err}
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, key string) (map[string]json.RawMessage, error) {
	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, &model.TransportError{Op: "redis hgetall " + key, Err: err}
	}
	out := make(map[string]json.RawMessage, len(values))
	for field, value := range values {
		out[field] = json.RawMessage(value)
	}
	return out, nil
}

func (s *Store) CommittedAt(ctx context.Context, key string) (time.Time, bool, error) {
	value, err := s.client.Get(ctx, committedKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &model.TransportError{Op: "redis get " + committedKey(key), Err: err}
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, &model.DecodeError{What: committedKey(key), Err: err}
	}
	return ts, true, nil
}

// AcquireLease takes name with SET NX PX and keeps extending the expiry every
// ttl/3 until release. Renewal stops once the key no longer carries this
// holder's token. The returned release only deletes the key while it still
// carries the token.
func (s *Store) AcquireLease(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, &model.TransportError{Op: "redis setnx " + name, Err: err}
	}
	if !ok {
		return nil, cache.ErrLeaseHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.renewLease(stop, name, token, ttl)
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		if err := releaseScript.Run(ctx, s.client, []string{name}, token).Err(); err != nil {
			return &model.TransportError{Op: "redis release " + name, Err: err}
		}
		return nil
	}
	return release, nil
}

func (s *Store) renewLease(stop <-chan struct{}, name, token string, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := renewScript.Run(ctx, s.client, []string{name}, token, ttl.Milliseconds()).Int()
		cancel()
		// A transport error is retried on the next tick; a zero reply means
		// the lease expired and someone else may hold it now.
		if err == nil && held == 0 {
			return
		}
	}
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lease token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Leaser = (*Store)(nil)
)

package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/metrics"
)

// Store decides whether one more request for key is allowed.
type Store interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Config struct {
	Store  Store
	Logger *zap.Logger
	// KeyFunc defaults to the client IP.
	KeyFunc func(c *fiber.Ctx) string
}

// Middleware rejects requests over the limit with 429. Store errors let the
// request through.
func Middleware(cfg Config) fiber.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}

	return func(c *fiber.Ctx) error {
		key := cfg.KeyFunc(c)

		allowed, err := cfg.Store.Allow(c.UserContext(), key)
		if err != nil {
			cfg.Logger.Warn("Rate limit store unavailable, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
			return c.Next()
		}

		if !allowed {
			metrics.RateLimited.Inc()
			cfg.Logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// MemoryStore is a per-key token bucket held in process memory.
type MemoryStore struct {
	buckets       map[string]*bucket
	mu            sync.RWMutex
	capacity      float64
	refillEvery   time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	done          chan struct{}
}

// NewMemoryStore refills one token every minute/requestsPerMinute up to
// burst tokens. A non-positive burst means requestsPerMinute.
func NewMemoryStore(requestsPerMinute, burst int) *MemoryStore {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}

	s := &MemoryStore{
		buckets:       make(map[string]*bucket),
		capacity:      float64(burst),
		refillEvery:   time.Minute / time.Duration(requestsPerMinute),
		now:           time.Now,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}

	go s.cleanup()

	return s
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	b, exists := s.buckets[key]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		if b, exists = s.buckets[key]; !exists {
			b = &bucket{tokens: s.capacity, lastRefill: s.now()}
			s.buckets[key] = b
		}
		s.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := s.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens = min(s.capacity, b.tokens+float64(elapsed)/float64(s.refillEvery))
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) cleanup() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanupTicker.C:
			s.mu.Lock()
			now := s.now()
			for key, b := range s.buckets {
				b.mu.Lock()
				if now.Sub(b.lastRefill) > 10*time.Minute {
					delete(s.buckets, key)
				}
				b.mu.Unlock()
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Stop() {
	s.cleanupTicker.Stop()
	close(s.done)
}

// WindowCounter is a shared counter keyed by fixed time window.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Duration, error)
}

// RedisStore allows limit requests per key per window across every replica
// sharing the counter.
type RedisStore struct {
	counter WindowCounter
	limit   int64
	window  time.Duration
	now     func() time.Time
}

func NewRedisStore(counter WindowCounter, limit int, window time.Duration) *RedisStore {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisStore{counter: counter, limit: int64(limit), window: window, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	n, _, err := s.counter.IncrWindow(ctx, key, s.window, s.now())
	if err != nil {
		return false, err
	}
	return n <= s.limit, nil
}

// Describe names the store for startup logs.
func Describe(store Store) string {
	switch s := store.(type) {
	case nil:
		return "disabled"
	case *MemoryStore:
		return "memory token bucket, burst " + strconv.Itoa(int(s.capacity))
	case *RedisStore:
		return "redis fixed window, " + strconv.FormatInt(s.limit, 10) + " per " + s.window.String()
	default:
		return "custom"
	}
}

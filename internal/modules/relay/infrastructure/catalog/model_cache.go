package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"ChatRelay/internal/modules/relay/infrastructure/retry"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = 300 * time.Second
	// DefaultFailureCooldown 刷新失败后的冷却期，期间直接返回旧值不再请求上游
	DefaultFailureCooldown = 30 * time.Second
)

// ModelLister 上游模型列表
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// SnapshotStore 进程外的模型列表快照，冷启动且上游不可用时兜底
type SnapshotStore interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, models []string) error
}

// Cache 模型列表缓存：TTL 内直接返回；过期后刷新，刷新失败返回旧值。
// 并发刷新合并为一次上游请求，刷新在锁外进行
type Cache struct {
	mu        sync.Mutex
	group     singleflight.Group
	lister    ModelLister
	snapshot  SnapshotStore
	ttl       time.Duration
	cooldown  time.Duration
	policy    retry.Policy
	models    []string
	fetchedAt time.Time
	failedAt  time.Time
}

type Option func(*Cache)

func WithSnapshot(s SnapshotStore) Option {
	return func(c *Cache) { c.snapshot = s }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Cache) { c.policy = p }
}

func WithFailureCooldown(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

func NewCache(lister ModelLister, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		lister:   lister,
		ttl:      ttl,
		cooldown: DefaultFailureCooldown,
		policy:   retry.Policy{Name: "list models"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models 使用当前时间
func (c *Cache) Models(ctx context.Context) []string {
	return c.Get(ctx, time.Now())
}

// Get 不返回错误：失败时退化为旧缓存，冷启动则尝试快照，最后返回空列表
func (c *Cache) Get(ctx context.Context, now time.Time) []string {
	c.mu.Lock()
	if cached, ok := c.servable(now); ok {
		c.mu.Unlock()
		return clone(cached)
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("models", func() (interface{}, error) {
		return c.refresh(ctx, now), nil
	})
	return clone(v.([]string))
}

// servable 调用方需持有 c.mu
func (c *Cache) servable(now time.Time) ([]string, bool) {
	if len(c.models) > 0 && now.Sub(c.fetchedAt) < c.ttl {
		return c.models, true
	}
	if !c.failedAt.IsZero() && now.Sub(c.failedAt) < c.cooldown {
		return c.models, true
	}
	return nil, false
}

func (c *Cache) refresh(ctx context.Context, now time.Time) []string {
	// 排队进入的调用方可能在上一轮刷新结束后才到达
	c.mu.Lock()
	if cached, ok := c.servable(now); ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	models, err := retry.Do(ctx, c.policy, func() ([]string, error) {
		return c.lister.ListModels(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		zlog.Error("fetch models failed", zap.Error(err), zap.Int("cached", len(c.models)))
		c.failedAt = now
		if len(c.models) == 0 {
			c.models = c.loadSnapshot(ctx)
		}
		return c.models
	}

	sort.Strings(models)
	c.models = models
	c.fetchedAt = now
	c.failedAt = time.Time{}
	c.saveSnapshot(ctx, models)
	return models
}

func (c *Cache) loadSnapshot(ctx context.Context) []string {
	if c.snapshot == nil {
		return nil
	}
	models, err := c.snapshot.Load(ctx)
	if err != nil {
		zlog.Warn("load model snapshot failed", zap.Error(err))
		return nil
	}
	if len(models) > 0 {
		zlog.Info("model list restored from snapshot", zap.Int("count", len(models)))
	}
	return models
}

func (c *Cache) saveSnapshot(ctx context.Context, models []string) {
	if c.snapshot == nil {
		return
	}
	if err := c.snapshot.Save(ctx, models); err != nil {
		zlog.Warn("save model snapshot failed", zap.Error(err))
	}
}

func clone(models []string) []string {
	if len(models) == 0 {
		return []string{}
	}
	out := make([]string, len(models))
	copy(out, models)
	return out
}

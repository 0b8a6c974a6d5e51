package retry

import (
	"context"
	"time"

	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// SleepFunc 等待 d；ctx 取消时提前返回 ctx.Err()
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy 指数退避：第 attempt 次失败后等待 BaseDelay * 2^attempt
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep 为空时使用真实计时器，测试中可替换
	Sleep SleepFunc
	// Name 仅用于日志
	Name string
}

func NewPolicy(maxRetries int, baseDelay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Do 最多执行 MaxRetries 次 fn，全部失败时原样返回最后一次的错误
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == p.MaxRetries-1 {
			break
		}

		delay := p.BaseDelay * time.Duration(1<<attempt)
		zlog.Warn("retry attempt failed",
			zap.String("op", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			// 等待被取消时仍返回业务错误本身
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"ChatRelay/internal/modules/relay/infrastructure/retry"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

var errEmptyCompletion = errors.New("empty completion")

// CallOptions 单次补全的附加参数
type CallOptions struct {
	MaxTokens int
}

type CallOption func(*CallOptions)

func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// Upstream 带重试与整体超时的补全客户端
type Upstream struct {
	chatModel model.BaseChatModel
	policy    retry.Policy
	// timeout 覆盖整个重试过程，0 表示不限制
	timeout time.Duration
}

func NewUpstream(chatModel model.BaseChatModel, policy retry.Policy, timeout time.Duration) *Upstream {
	if policy.Name == "" {
		policy.Name = "chat completion"
	}
	return &Upstream{chatModel: chatModel, policy: policy, timeout: timeout}
}

// Complete 调用 modelName 生成回复；重试耗尽后返回 *xerr.UpstreamError
func (u *Upstream) Complete(ctx context.Context, modelName string, msgs []*schema.Message, opts ...CallOption) (string, error) {
	var co CallOptions
	for _, opt := range opts {
		opt(&co)
	}

	callOpts := []model.Option{model.WithModel(modelName)}
	if co.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(co.MaxTokens))
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := retry.Do(ctx, u.policy, func() (string, error) {
		resp, err := u.chatModel.Generate(ctx, msgs, callOpts...)
		if err != nil {
			return "", err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return "", errEmptyCompletion
		}
		return resp.Content, nil
	})
	if err != nil {
		zlog.Error("upstream completion failed",
			zap.String("model", modelName),
			zap.Int("messages", len(msgs)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", &xerr.UpstreamError{Model: modelName, Err: err}
	}

	zlog.Debug("upstream completion ok",
		zap.String("model", modelName),
		zap.Int("messages", len(msgs)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

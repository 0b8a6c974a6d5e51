package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/infrastructure/llm"
	"ChatRelay/pkg/util"
	"ChatRelay/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const maxTitleRunes = 64

// TitleScheduler 首轮问答完成后触发，调用方不等待结果
type TitleScheduler interface {
	Schedule(sessionID int64, question, answer string)
}

// AutoTitler 用默认模型为会话生成短标题，失败只记日志
type AutoTitler struct {
	completer Completer
	sessions  repository.SessionRepository
	model     string
	maxTokens int
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewAutoTitler(completer Completer, sessions repository.SessionRepository, defaultModel string, maxTokens int, timeout time.Duration) *AutoTitler {
	if maxTokens <= 0 {
		maxTokens = 30
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &AutoTitler{
		completer: completer,
		sessions:  sessions,
		model:     defaultModel,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

func (t *AutoTitler) Schedule(sessionID int64, question, answer string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				zlog.Error("auto title panic", zap.Int64("session_id", sessionID), zap.Any("panic", r))
			}
		}()

		// 与请求上下文脱钩，请求结束后继续执行
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		if err := t.Generate(ctx, sessionID, question, answer); err != nil {
			zlog.Error("auto title failed", zap.Int64("session_id", sessionID), zap.Error(err))
		}
	}()
}

// Generate 同步生成并写回标题
func (t *AutoTitler) Generate(ctx context.Context, sessionID int64, question, answer string) error {
	prompt := fmt.Sprintf("User: %s\nAI: %s\n\n请用不超过20个中文字符总结上述对话的主题，直接返回标题，不要加引号。", question, answer)

	raw, err := t.completer.Complete(ctx, t.model, []*schema.Message{schema.UserMessage(prompt)}, llm.WithMaxTokens(t.maxTokens))
	if err != nil {
		return err
	}

	title := util.TruncateRunes(strings.TrimSpace(raw), maxTitleRunes, "")
	if title == "" {
		return fmt.Errorf("empty title")
	}
	if err := t.sessions.RenameSession(ctx, sessionID, title); err != nil {
		return err
	}
	zlog.Info("session auto-titled", zap.Int64("session_id", sessionID), zap.String("title", title))
	return nil
}

// Wait 等待所有进行中的标题任务（关停与测试使用）
func (t *AutoTitler) Wait() {
	t.wg.Wait()
}

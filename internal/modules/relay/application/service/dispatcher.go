package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

const (
	rejectText         = "⛔ 抱歉，您没有使用此机器人的权限。"
	genericFailureText = "❌ 发生了意外错误，请稍后重试。\n如果问题持续存在，请使用 /new 开启新对话。"
)

var (
	ErrUnknownCommand  = xerr.New(xerr.BadRequest, "未知命令")
	ErrUnknownCallback = xerr.New(xerr.BadRequest, "未知回调")
)

// Dispatcher 入口：白名单校验、命令/回调路由、统一错误兜底
type Dispatcher struct {
	allowed      func(userID int64) bool
	conversation ConversationService
	sessions     SessionService
	images       ImageService
}

func NewDispatcher(allowed func(userID int64) bool, conversation ConversationService, sessions SessionService, images ImageService) *Dispatcher {
	if allowed == nil {
		allowed = func(int64) bool { return true }
	}
	return &Dispatcher{
		allowed:      allowed,
		conversation: conversation,
		sessions:     sessions,
		images:       images,
	}
}

// ParseCommand "/model gpt-4o" -> ("model", "gpt-4o", true)；支持 /cmd@bot 形式
func ParseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	head = strings.ToLower(strings.TrimSpace(head))
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(args), true
}

// HandleMessage 普通消息；以 / 开头的文本按命令处理
func (d *Dispatcher) HandleMessage(ctx context.Context, ev transport.Event, r transport.Replier) error {
	if !ev.IsPhoto() {
		if cmd, args, ok := ParseCommand(ev.Text); ok {
			ev.Text = args
			return d.HandleCommand(ctx, cmd, ev, r)
		}
	}

	return d.guard(ctx, "message", ev, r, func() error {
		if ev.IsPhoto() {
			return d.conversation.HandlePhoto(ctx, ev, r)
		}
		return d.conversation.HandleMessage(ctx, ev, r)
	})
}

// HandleCommand ev.Text 为命令参数
func (d *Dispatcher) HandleCommand(ctx context.Context, command string, ev transport.Event, r transport.Replier) error {
	command = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/"))

	var fn func() error
	switch command {
	case "start":
		fn = func() error { return d.sessions.Start(ctx, ev, r) }
	case "help":
		fn = func() error { return d.sessions.Help(ctx, ev, r) }
	case "new":
		fn = func() error { return d.sessions.NewSession(ctx, ev, r) }
	case "history":
		fn = func() error { return d.sessions.ListSessions(ctx, ev, r) }
	case "model":
		fn = func() error { return d.sessions.SelectModel(ctx, ev, r, ev.Text) }
	case "rename":
		fn = func() error { return d.sessions.RenameSession(ctx, ev, r, ev.Text) }
	case "image":
		fn = func() error { return d.images.GenerateImage(ctx, ev, r, ev.Text) }
	default:
		zlog.Info("unknown command ignored", zap.String("command", command), zap.Int64("user_id", ev.UserID))
		return ErrUnknownCommand
	}
	return d.guard(ctx, "/"+command, ev, r, fn)
}

// HandleCallback 菜单按钮回调
func (d *Dispatcher) HandleCallback(ctx context.Context, data string, ev transport.Event, r transport.Replier) error {
	data = strings.TrimSpace(data)

	var fn func() error
	switch {
	case strings.HasPrefix(data, transport.CallbackSession):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, transport.CallbackSession), 10, 64)
		if err != nil {
			return xerr.ErrParam
		}
		fn = func() error { return d.sessions.SwitchSession(ctx, ev, r, id) }

	case strings.HasPrefix(data, transport.CallbackModelSel):
		name := strings.TrimSpace(strings.TrimPrefix(data, transport.CallbackModelSel))
		if name == "" {
			return xerr.ErrParam
		}
		fn = func() error { return d.sessions.ChooseModel(ctx, ev, r, name) }

	case strings.HasPrefix(data, transport.CallbackModelPage):
		page, err := strconv.Atoi(strings.TrimPrefix(data, transport.CallbackModelPage))
		if err != nil {
			return xerr.ErrParam
		}
		fn = func() error { return d.sessions.ShowModelPage(ctx, ev, r, page) }

	case data == transport.CallbackModelClose:
		fn = func() error { return d.sessions.CloseModelMenu(ctx, ev, r) }

	default:
		return ErrUnknownCallback
	}
	return d.guard(ctx, "callback", ev, r, fn)
}

// guard 白名单 + 错误兜底：存储故障等非预期错误只给用户通用提示
func (d *Dispatcher) guard(ctx context.Context, op string, ev transport.Event, r transport.Replier, fn func() error) error {
	if !d.allowed(ev.UserID) {
		zlog.Warn("user rejected by allow-list", zap.Int64("user_id", ev.UserID), zap.String("op", op))
		sendPlain(ctx, r, rejectText)
		return xerr.ErrForbidden
	}

	err := fn()
	if err == nil {
		return nil
	}

	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return err
	}

	zlog.Error("relay handler failed",
		zap.String("op", op),
		zap.Int64("user_id", ev.UserID),
		zap.Bool("storage", xerr.IsStorage(err)),
		zap.Error(err))
	sendPlain(ctx, r, genericFailureText)
	return nil
}

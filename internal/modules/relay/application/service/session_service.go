package service

import (
	"context"
	"fmt"
	"strings"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/internal/modules/relay/infrastructure/postprocess"
	"ChatRelay/pkg/util"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

const (
	replayContentRunes = 200

	welcomeText = "👋 欢迎使用 AI 助手！\n\n" +
		"常用命令：\n" +
		"/new - 开始新对话\n" +
		"/history - 查看历史对话\n" +
		"/model - 切换模型\n" +
		"/rename <标题> - 重命名当前对话\n\n" +
		"💡 直接发送文字或图片即可开始对话。"

	helpText = "📚 帮助文档：\n\n" +
		"/start - 初始化\n" +
		"/new - 清空上下文，开始新的话题\n" +
		"/history - 列出最近的 10 个对话记录，点击可恢复\n" +
		"/model [模型名] - 查看当前模型或切换模型\n" +
		"/rename <新标题> - 修改当前会话的标题\n" +
		"/image <提示词> - 使用当前模型生成图片\n\n" +
		"💡 提示：\n" +
		"• 发送图片可进行图像识别（需多模态模型）\n" +
		"• 切换到生图模型后直接发送描述即可生成图片"
)

// SessionService 会话管理命令
type SessionService interface {
	Start(ctx context.Context, ev transport.Event, r transport.Replier) error
	Help(ctx context.Context, ev transport.Event, r transport.Replier) error

	// NewSession 以默认模型开启新会话
	NewSession(ctx context.Context, ev transport.Event, r transport.Replier) error

	// ListSessions 最近会话菜单
	ListSessions(ctx context.Context, ev transport.Event, r transport.Replier) error

	// SwitchSession 切换并回放最近消息
	SwitchSession(ctx context.Context, ev transport.Event, r transport.Replier, sessionID int64) error

	// SelectModel name 为空时展示模型菜单
	SelectModel(ctx context.Context, ev transport.Event, r transport.Replier, name string) error
	ShowModelPage(ctx context.Context, ev transport.Event, r transport.Replier, page int) error

	// ChooseModel 菜单点击：切换后关闭菜单
	ChooseModel(ctx context.Context, ev transport.Event, r transport.Replier, name string) error
	CloseModelMenu(ctx context.Context, ev transport.Event, r transport.Replier) error

	RenameSession(ctx context.Context, ev transport.Event, r transport.Replier, title string) error
}

const noSessionHint = "⚠️ 请先开始一个对话 (/start 或 /new)。"

type sessionServiceImpl struct {
	store    repository.Store
	resolver *sessionResolver
	catalog  ModelCatalog
	settings Settings
}

func NewSessionService(store repository.Store, catalog ModelCatalog, settings Settings) SessionService {
	settings = settings.withDefaults()
	return &sessionServiceImpl{
		store:    store,
		resolver: &sessionResolver{store: store, defaultModel: settings.DefaultModel},
		catalog:  catalog,
		settings: settings,
	}
}

func (s *sessionServiceImpl) Start(ctx context.Context, ev transport.Event, r transport.Replier) error {
	if _, err := s.resolver.ensure(ctx, ev); err != nil {
		return err
	}
	sendPlain(ctx, r, welcomeText)
	return nil
}

func (s *sessionServiceImpl) Help(ctx context.Context, _ transport.Event, r transport.Replier) error {
	sendPlain(ctx, r, helpText)
	return nil
}

func (s *sessionServiceImpl) NewSession(ctx context.Context, ev transport.Event, r transport.Replier) error {
	if _, err := s.resolver.touchUser(ctx, ev); err != nil {
		return err
	}
	if _, err := s.resolver.create(ctx, ev.UserID); err != nil {
		return err
	}
	sendText(ctx, r, fmt.Sprintf("🆕 已通过模型 `%s` 开启新对话。", s.settings.DefaultModel))
	return nil
}

func (s *sessionServiceImpl) ListSessions(ctx context.Context, ev transport.Event, r transport.Replier) error {
	sessions, err := s.store.ListSessions(ctx, ev.UserID, s.settings.HistoryLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		sendPlain(ctx, r, "📭 暂无历史记录。")
		return nil
	}

	rows := make([][]transport.Button, 0, len(sessions))
	for _, sess := range sessions {
		title := strings.TrimSpace(sess.Title)
		if title == "" {
			title = fmt.Sprintf("Session %d", sess.Id)
		}
		rows = append(rows, []transport.Button{{
			Text: fmt.Sprintf("%s (%s)", title, sess.Model),
			Data: fmt.Sprintf("%s%d", transport.CallbackSession, sess.Id),
		}})
	}

	if _, err := r.SendMenu(ctx, "📜 **历史对话记录** (点击切换)：", rows); err != nil {
		zlog.Warn("send history menu failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
	return nil
}

func (s *sessionServiceImpl) SwitchSession(ctx context.Context, ev transport.Event, r transport.Replier, sessionID int64) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserId != ev.UserID {
		sendPlain(ctx, r, "⚠️ 会话不存在。")
		return nil
	}

	if err := s.store.SetCurrentSession(ctx, ev.UserID, sessionID); err != nil {
		return err
	}
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		return err
	}
	zlog.Info("session switched", zap.Int64("user_id", ev.UserID), zap.Int64("session_id", sessionID))

	if err := s.replay(ctx, r, sessionID); err != nil {
		return err
	}

	confirm := fmt.Sprintf("✅ 已切换回对话：**%s**", sess.Title)
	if ev.MessageRef != "" {
		replaceOrSend(ctx, r, ev.MessageRef, confirm)
	} else {
		sendText(ctx, r, confirm)
	}
	return nil
}

func (s *sessionServiceImpl) replay(ctx context.Context, r transport.Replier, sessionID int64) error {
	msgs, err := s.store.GetMessages(ctx, sessionID, s.settings.ReplayLimit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	lines := []string{fmt.Sprintf("📜 **历史记录回放 (最后 %d 条)**:", s.settings.ReplayLimit)}
	for _, m := range msgs {
		role := "👤 User"
		if m.Role == entity.RoleAssistant {
			role = "🤖 AI"
		}
		content := util.TruncateRunes(m.Content, replayContentRunes, "...")
		lines = append(lines, fmt.Sprintf("\n**%s**: %s", role, content))
	}

	for _, part := range postprocess.Render(strings.Join(lines, "\n"), s.settings.MaxMessageLength) {
		sendText(ctx, r, part)
	}
	return nil
}

func (s *sessionServiceImpl) SelectModel(ctx context.Context, ev transport.Event, r transport.Replier, name string) error {
	sess, err := s.resolver.current(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		sendPlain(ctx, r, noSessionHint)
		return nil
	}

	name = strings.TrimSpace(name)
	if name != "" {
		if err := s.store.SetSessionModel(ctx, sess.Id, name); err != nil {
			return err
		}
		zlog.Info("session model changed", zap.Int64("session_id", sess.Id), zap.String("model", name))
		sendText(ctx, r, fmt.Sprintf("🔄 模型已切换为：`%s`", name))
		return nil
	}

	models := s.catalog.Models(ctx)
	if len(models) == 0 {
		sendText(ctx, r, fmt.Sprintf("当前模型: `%s`\n(无法获取模型列表，请手动输入)", sess.Model))
		return nil
	}

	text, rows := modelMenu(models, 0, s.settings.ModelsPerPage)
	if _, err := r.SendMenu(ctx, text, rows); err != nil {
		zlog.Warn("send model menu failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
	return nil
}

func (s *sessionServiceImpl) ShowModelPage(ctx context.Context, ev transport.Event, r transport.Replier, page int) error {
	models := s.catalog.Models(ctx)
	if len(models) == 0 {
		sendPlain(ctx, r, "⚠️ 暂时无法获取模型列表。")
		return nil
	}

	text, rows := modelMenu(models, page, s.settings.ModelsPerPage)
	if ev.MessageRef != "" {
		if err := r.EditMenu(ctx, ev.MessageRef, text, rows); err == nil {
			return nil
		}
	}
	if _, err := r.SendMenu(ctx, text, rows); err != nil {
		zlog.Warn("send model menu failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
	return nil
}

func (s *sessionServiceImpl) CloseModelMenu(ctx context.Context, ev transport.Event, r transport.Replier) error {
	deletePlaceholder(ctx, r, ev.MessageRef)
	return nil
}

func (s *sessionServiceImpl) ChooseModel(ctx context.Context, ev transport.Event, r transport.Replier, name string) error {
	sess, err := s.resolver.current(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		sendPlain(ctx, r, noSessionHint)
		return nil
	}
	if err := s.store.SetSessionModel(ctx, sess.Id, name); err != nil {
		return err
	}
	zlog.Info("session model changed", zap.Int64("session_id", sess.Id), zap.String("model", name))
	deletePlaceholder(ctx, r, ev.MessageRef)
	sendText(ctx, r, fmt.Sprintf("✅ 已切换至模型: `%s`", name))
	return nil
}

func (s *sessionServiceImpl) RenameSession(ctx context.Context, ev transport.Event, r transport.Replier, title string) error {
	sess, err := s.resolver.current(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		sendPlain(ctx, r, "⚠️ 没有活跃的对话。")
		return nil
	}

	title = strings.TrimSpace(title)
	if title == "" {
		sendText(ctx, r, "⚠️ 请输入新标题，例如：`/rename 翻译助手`")
		return nil
	}

	if err := s.store.RenameSession(ctx, sess.Id, title); err != nil {
		return err
	}
	sendText(ctx, r, fmt.Sprintf("✍️ 标题已修改为：**%s**", title))
	return nil
}

// ModelPage 返回第 page 页（从 0 开始，越界时收敛到边界）及总页数
func ModelPage(models []string, page, perPage int) ([]string, int, int) {
	if perPage <= 0 {
		perPage = 5
	}
	total := (len(models) + perPage - 1) / perPage
	if total == 0 {
		return nil, 0, 0
	}
	if page < 0 {
		page = 0
	}
	if page > total-1 {
		page = total - 1
	}
	start := page * perPage
	end := start + perPage
	if end > len(models) {
		end = len(models)
	}
	return models[start:end], page, total
}

func modelMenu(models []string, page, perPage int) (string, [][]transport.Button) {
	items, page, total := ModelPage(models, page, perPage)

	rows := make([][]transport.Button, 0, len(items)+2)
	for _, m := range items {
		rows = append(rows, []transport.Button{{Text: m, Data: transport.CallbackModelSel + m}})
	}

	var nav []transport.Button
	if page > 0 {
		nav = append(nav, transport.Button{Text: "< 上一页", Data: fmt.Sprintf("%s%d", transport.CallbackModelPage, page-1)})
	}
	if page < total-1 {
		nav = append(nav, transport.Button{Text: "下一页 >", Data: fmt.Sprintf("%s%d", transport.CallbackModelPage, page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []transport.Button{{Text: "❌ 关闭", Data: transport.CallbackModelClose}})

	return fmt.Sprintf("🤖 **请选择模型** (第 %d/%d 页):", page+1, total), rows
}

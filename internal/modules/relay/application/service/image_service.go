package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/internal/modules/relay/infrastructure/postprocess"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

var (
	parenURLPattern = regexp.MustCompile(`\((https?://.+?)\)`)
	bareURLPattern  = regexp.MustCompile(`(https?://[^\s]+)`)
)

// ImageService /image 生图：走补全接口，从回复中取图片链接
type ImageService interface {
	GenerateImage(ctx context.Context, ev transport.Event, r transport.Replier, prompt string) error
}

type imageServiceImpl struct {
	store     repository.Store
	resolver  *sessionResolver
	completer Completer
	titler    TitleScheduler
	locks     *SessionLocks
	settings  Settings
}

func NewImageService(store repository.Store, completer Completer, titler TitleScheduler, locks *SessionLocks, settings Settings) ImageService {
	settings = settings.withDefaults()
	return &imageServiceImpl{
		store:     store,
		resolver:  &sessionResolver{store: store, defaultModel: settings.DefaultModel},
		completer: completer,
		titler:    titler,
		locks:     locks,
		settings:  settings,
	}
}

func (s *imageServiceImpl) GenerateImage(ctx context.Context, ev transport.Event, r transport.Replier, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		sendText(ctx, r, "🎨 请输入提示词，例如：`/image 一只在太空游泳的猫`")
		return nil
	}

	// 会话模型优先；用户还没有会话时使用配置的生图模型
	imageModel := s.settings.ImageModel
	current, err := s.resolver.current(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if current != nil && current.Model != "" {
		imageModel = current.Model
	}

	sess, err := s.resolver.ensure(ctx, ev)
	if err != nil {
		return err
	}

	zlog.Info("image generation requested",
		zap.Int64("user_id", ev.UserID),
		zap.Int64("session_id", sess.Id),
		zap.String("model", imageModel))

	placeholder := sendText(ctx, r, fmt.Sprintf("🎨 正在使用 `%s` 绘制中，请稍候...", imageModel))

	unlock := s.locks.Lock(sess.Id)
	defer unlock()

	if _, err := s.store.AppendMessage(ctx, sess.Id, entity.RoleUser, "/image "+prompt, entity.KindText); err != nil {
		deletePlaceholder(ctx, r, placeholder)
		return err
	}

	content, err := s.completer.Complete(ctx, imageModel, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		if !xerr.IsUpstream(err) {
			return err
		}
		replaceOrSend(ctx, r, placeholder, "❌ 绘图失败: "+xerr.Truncate(err, s.settings.ErrorTextLimit))
		return nil
	}

	if _, err := s.store.AppendMessage(ctx, sess.Id, entity.RoleAssistant, content, entity.KindImage); err != nil {
		deletePlaceholder(ctx, r, placeholder)
		return err
	}
	count, err := s.store.CountMessages(ctx, sess.Id)
	if err != nil {
		zlog.Warn("count messages failed", zap.Int64("session_id", sess.Id), zap.Error(err))
	}
	unlock()

	if url := extractGeneratedURL(content); url != "" {
		caption := fmt.Sprintf("🔗 **图片链接**: %s\nModel: `%s`", url, imageModel)
		if err := r.SendPhoto(ctx, url, caption, transport.FormatMarkdown); err != nil {
			zlog.Warn("send generated image failed, fallback to link",
				zap.String("url", url),
				zap.Error(&xerr.DeliveryError{Op: "send photo", Err: err}))
			sendText(ctx, r, fmt.Sprintf("🖼 图片链接: %s\n🤖 Model: `%s`", url, imageModel))
		}
	} else {
		for _, part := range postprocess.Render("🎨 **生成结果**:\n"+content, s.settings.MaxMessageLength) {
			sendText(ctx, r, part)
		}
	}
	deletePlaceholder(ctx, r, placeholder)

	if count == 2 && s.titler != nil {
		s.titler.Schedule(sess.Id, "绘制图片: "+prompt, "图片已生成")
	}
	return nil
}

// extractGeneratedURL 优先取括号里的链接（Markdown 图片/链接），否则取第一个裸链接
func extractGeneratedURL(content string) string {
	if m := parenURLPattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := bareURLPattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}

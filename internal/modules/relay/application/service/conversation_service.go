package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/util"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	defaultPhotoCaption = "请描述这张图片"
	defaultPhotoMIME    = "image/jpeg"
	photoContentPrefix  = "[图片] "
	logPreviewRunes     = 50
)

// ConversationService 普通消息与图片消息的完整一轮对话
type ConversationService interface {
	// HandleMessage 文本消息
	HandleMessage(ctx context.Context, ev transport.Event, r transport.Replier) error

	// HandlePhoto 图片消息（多模态）
	HandlePhoto(ctx context.Context, ev transport.Event, r transport.Replier) error
}

type conversationServiceImpl struct {
	store     repository.Store
	resolver  *sessionResolver
	builder   *ContextBuilder
	completer Completer
	deliverer *Deliverer
	titler    TitleScheduler
	locks     *SessionLocks
	settings  Settings
}

func NewConversationService(
	store repository.Store,
	completer Completer,
	titler TitleScheduler,
	locks *SessionLocks,
	settings Settings,
) ConversationService {
	settings = settings.withDefaults()
	return &conversationServiceImpl{
		store:     store,
		resolver:  &sessionResolver{store: store, defaultModel: settings.DefaultModel},
		builder:   NewContextBuilder(store, settings.MaxContextMessages),
		completer: completer,
		deliverer: NewDeliverer(settings.MaxMessageLength, settings.MaxImages),
		titler:    titler,
		locks:     locks,
		settings:  settings,
	}
}

// turn 一轮对话的输入
type turn struct {
	content     string
	kind        string
	image       *ImageAttachment
	placeholder string
	failHint    string
}

func (s *conversationServiceImpl) HandleMessage(ctx context.Context, ev transport.Event, r transport.Replier) error {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return xerr.ErrParam
	}
	return s.roundTrip(ctx, ev, r, turn{
		content:     text,
		kind:        entity.KindText,
		placeholder: "🔄 正在思考中...",
		failHint:    "可能是模型 `%s` 配置有误或额度不足。",
	})
}

func (s *conversationServiceImpl) HandlePhoto(ctx context.Context, ev transport.Event, r transport.Replier) error {
	if !ev.IsPhoto() {
		return xerr.ErrParam
	}

	caption := strings.TrimSpace(ev.Caption)
	if caption == "" {
		caption = defaultPhotoCaption
	}

	return s.roundTrip(ctx, ev, r, turn{
		content:     photoContentPrefix + caption,
		kind:        entity.KindImage,
		image:       &ImageAttachment{Caption: caption, DataURL: photoDataURL(ev.PhotoData)},
		placeholder: "🔄 正在分析图片...",
		failHint:    "模型 `%s` 可能不支持图像识别。",
	})
}

func (s *conversationServiceImpl) roundTrip(ctx context.Context, ev transport.Event, r transport.Replier, t turn) error {
	sess, err := s.resolver.ensure(ctx, ev)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(sess.Id)
	defer unlock()

	if _, err := s.store.AppendMessage(ctx, sess.Id, entity.RoleUser, t.content, t.kind); err != nil {
		return err
	}

	msgs, err := s.builder.Build(ctx, sess.Id, t.image)
	if err != nil {
		return err
	}

	zlog.Info("relay request",
		zap.Int64("user_id", ev.UserID),
		zap.Int64("session_id", sess.Id),
		zap.String("model", sess.Model),
		zap.String("kind", t.kind),
		zap.Int("context", len(msgs)),
		zap.String("preview", util.TruncateRunes(t.content, logPreviewRunes, "...")))

	placeholder := sendPlain(ctx, r, t.placeholder)

	start := time.Now()
	reply, err := s.completer.Complete(ctx, sess.Model, msgs)
	if err != nil {
		if !xerr.IsUpstream(err) {
			return err
		}
		msg := fmt.Sprintf("❌ 请求失败: %s\n\n"+t.failHint, xerr.Truncate(err, s.settings.ErrorTextLimit), sess.Model)
		replaceOrSend(ctx, r, placeholder, msg)
		return nil
	}

	if _, err := s.store.AppendMessage(ctx, sess.Id, entity.RoleAssistant, reply, entity.KindText); err != nil {
		deletePlaceholder(ctx, r, placeholder)
		return err
	}
	if err := s.store.TouchSession(ctx, sess.Id); err != nil {
		zlog.Warn("touch session failed", zap.Int64("session_id", sess.Id), zap.Error(err))
	}
	count, err := s.store.CountMessages(ctx, sess.Id)
	if err != nil {
		zlog.Warn("count messages failed", zap.Int64("session_id", sess.Id), zap.Error(err))
	}
	unlock()

	zlog.Info("relay reply",
		zap.Int64("session_id", sess.Id),
		zap.String("model", sess.Model),
		zap.Int("reply_len", len([]rune(reply))),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	s.deliverer.Deliver(ctx, r, placeholder, reply, sess.Model)

	// 首轮问答（1 user + 1 assistant）之后才生成标题
	if count == 2 && s.titler != nil {
		s.titler.Schedule(sess.Id, t.content, reply)
	}
	return nil
}

// photoDataURL 按内容识别 MIME，无法识别为图片时按 JPEG 处理
func photoDataURL(data []byte) string {
	mime := defaultPhotoMIME
	if mt := mimetype.Detect(data); mt != nil && strings.HasPrefix(mt.String(), "image/") {
		mime = mt.String()
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

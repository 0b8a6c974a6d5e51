package service

import (
	"context"
	"fmt"

	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/internal/modules/relay/infrastructure/postprocess"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

// Deliverer 把模型回复按图片/文本投递给用户；单项失败降级，不中断整体
type Deliverer struct {
	maxLen    int
	maxImages int
}

func NewDeliverer(maxLen, maxImages int) *Deliverer {
	return &Deliverer{maxLen: maxLen, maxImages: maxImages}
}

// Deliver placeholder 为空时视为没有占位消息
func (d *Deliverer) Deliver(ctx context.Context, r transport.Replier, placeholder transport.MessageRef, reply, model string) {
	urls := postprocess.DeliverableImages(postprocess.ExtractImageURLs(reply), d.maxImages)
	if len(urls) > 0 {
		deletePlaceholder(ctx, r, placeholder)

		for _, url := range urls {
			caption := fmt.Sprintf("🔗 %s\n\n🤖 Model: `%s`", url, model)
			if err := r.SendPhoto(ctx, url, caption, transport.FormatMarkdown); err != nil {
				zlog.Warn("send image failed, fallback to link",
					zap.String("url", url),
					zap.Error(&xerr.DeliveryError{Op: "send photo", Err: err}))
				sendText(ctx, r, fmt.Sprintf("🖼 图片链接: %s\n🤖 Model: `%s`", url, model))
			}
		}

		if rest := postprocess.StripImages(reply); rest != "" {
			for _, part := range postprocess.Render(rest, d.maxLen) {
				sendText(ctx, r, part)
			}
		}
		return
	}

	parts := postprocess.Render(reply, d.maxLen)
	if len(parts) == 1 && placeholder != "" {
		if err := editText(ctx, r, placeholder, parts[0]); err == nil {
			return
		}
		// 占位消息编辑失败（例如已被删除），改为新发
		sendText(ctx, r, parts[0])
		return
	}

	deletePlaceholder(ctx, r, placeholder)
	for _, part := range parts {
		sendText(ctx, r, part)
	}
}

// sendText 先按 Markdown 发送，被拒绝时以纯文本重发
func sendText(ctx context.Context, r transport.Replier, text string) transport.MessageRef {
	ref, err := r.SendText(ctx, text, transport.FormatMarkdown)
	if err == nil {
		return ref
	}
	zlog.Warn("markdown send rejected, retry as plain",
		zap.Error(&xerr.DeliveryError{Op: "send text", Err: err}))

	ref, err = r.SendText(ctx, text, transport.FormatPlain)
	if err != nil {
		zlog.Error("send text failed", zap.Error(&xerr.DeliveryError{Op: "send text", Err: err}))
		return ""
	}
	return ref
}

// sendPlain 不含格式的短提示（占位、拒绝等）
func sendPlain(ctx context.Context, r transport.Replier, text string) transport.MessageRef {
	ref, err := r.SendText(ctx, text, transport.FormatPlain)
	if err != nil {
		zlog.Warn("send plain text failed", zap.Error(&xerr.DeliveryError{Op: "send text", Err: err}))
		return ""
	}
	return ref
}

func editText(ctx context.Context, r transport.Replier, ref transport.MessageRef, text string) error {
	err := r.EditText(ctx, ref, text, transport.FormatMarkdown)
	if err == nil {
		return nil
	}
	zlog.Warn("markdown edit rejected, retry as plain",
		zap.Error(&xerr.DeliveryError{Op: "edit text", Err: err}))

	if err = r.EditText(ctx, ref, text, transport.FormatPlain); err != nil {
		zlog.Error("edit text failed", zap.Error(&xerr.DeliveryError{Op: "edit text", Err: err}))
		return err
	}
	return nil
}

// replaceOrSend 有占位消息时编辑它，否则新发
func replaceOrSend(ctx context.Context, r transport.Replier, placeholder transport.MessageRef, text string) {
	if placeholder != "" && editText(ctx, r, placeholder, text) == nil {
		return
	}
	sendText(ctx, r, text)
}

func deletePlaceholder(ctx context.Context, r transport.Replier, ref transport.MessageRef) {
	if ref == "" {
		return
	}
	if err := r.Delete(ctx, ref); err != nil {
		zlog.Warn("delete placeholder failed", zap.Error(&xerr.DeliveryError{Op: "delete", Err: err}))
	}
}

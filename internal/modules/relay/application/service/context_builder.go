package service

import (
	"context"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"

	"github.com/cloudwego/eino/schema"
)

// ImageAttachment 本轮随消息发送的图片
type ImageAttachment struct {
	Caption string
	DataURL string
}

// ContextBuilder 组装发往上游的消息列表：只取最近 maxContext 条，旧消息直接丢弃
type ContextBuilder struct {
	messages   repository.MessageRepository
	maxContext int
}

func NewContextBuilder(messages repository.MessageRepository, maxContext int) *ContextBuilder {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ContextBuilder{messages: messages, maxContext: maxContext}
}

// Build img 非空时，最后一条（即刚写入的图片消息）替换为 文本+图片 的多段内容，其余一律按纯文本
func (b *ContextBuilder) Build(ctx context.Context, sessionID int64, img *ImageAttachment) ([]*schema.Message, error) {
	history, err := b.messages.GetMessages(ctx, sessionID, b.maxContext)
	if err != nil {
		return nil, err
	}

	if img == nil {
		out := make([]*schema.Message, 0, len(history))
		for _, m := range history {
			out = append(out, toSchemaMessage(m))
		}
		return out, nil
	}

	earlier := history
	if len(earlier) > 0 {
		earlier = earlier[:len(earlier)-1]
	}
	out := make([]*schema.Message, 0, len(earlier)+1)
	for _, m := range earlier {
		out = append(out, toSchemaMessage(m))
	}
	out = append(out, &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: img.Caption},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: img.DataURL}},
		},
	})
	return out, nil
}

func toSchemaMessage(m *entity.Message) *schema.Message {
	role := schema.User
	if m.Role == entity.RoleAssistant {
		role = schema.Assistant
	}
	return &schema.Message{Role: role, Content: m.Content}
}

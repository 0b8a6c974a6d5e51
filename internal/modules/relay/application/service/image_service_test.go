package service

import (
	"context"
	"errors"
	"testing"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImages(t *testing.T, completer Completer) (*imageServiceImpl, *fakeTitler) {
	t.Helper()
	titler := &fakeTitler{}
	svc := NewImageService(newTestStore(t), completer, titler, NewSessionLocks(), testSettings())
	return svc.(*imageServiceImpl), titler
}

func TestGenerateImage_EmptyPromptAsksForOne(t *testing.T) {
	completer := &fakeCompleter{}
	svc, _ := newImages(t, completer)
	r := &recordingReplier{}

	require.NoError(t, svc.GenerateImage(context.Background(), event(1, ""), r, "   "))
	assert.Equal(t, "🎨 请输入提示词，例如：`/image 一只在太空游泳的猫`", r.last().text)
	assert.Empty(t, completer.calls)
}

func TestGenerateImage_SendsPhotoAndTitles(t *testing.T) {
	completer := &fakeCompleter{reply: "![img](https://cdn.example.com/cat.png)"}
	svc, titler := newImages(t, completer)
	r := &recordingReplier{}
	ctx := context.Background()

	require.NoError(t, svc.GenerateImage(ctx, event(1, ""), r, "a cat"))

	call := completer.lastCall()
	assert.Equal(t, "dall-e-3", call.model)
	require.Len(t, call.msgs, 1)
	assert.Equal(t, "a cat", call.msgs[0].Content)

	require.Equal(t, []string{"send", "photo", "delete"}, r.kinds())
	assert.Equal(t, "🎨 正在使用 `dall-e-3` 绘制中，请稍候...", r.ops[0].text)
	assert.Equal(t, "https://cdn.example.com/cat.png", r.ops[1].url)
	assert.Equal(t, "🔗 **图片链接**: https://cdn.example.com/cat.png\nModel: `dall-e-3`", r.ops[1].text)
	assert.Equal(t, r.ops[0].ref, r.ops[2].ref)

	sess, err := svc.resolver.current(ctx, 1)
	require.NoError(t, err)
	msgs, err := svc.store.GetMessages(ctx, sess.Id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "/image a cat", msgs[0].Content)
	assert.Equal(t, entity.KindImage, msgs[1].Kind)

	require.Len(t, titler.calls, 1)
	assert.Equal(t, "绘制图片: a cat", titler.calls[0].question)
	assert.Equal(t, "图片已生成", titler.calls[0].answer)
}

func TestGenerateImage_SessionModelWins(t *testing.T) {
	completer := &fakeCompleter{reply: "https://cdn.example.com/x.webp"}
	svc, _ := newImages(t, completer)
	ctx := context.Background()

	sess, err := svc.resolver.ensure(ctx, event(2, ""))
	require.NoError(t, err)
	require.NoError(t, svc.store.SetSessionModel(ctx, sess.Id, "flux-pro"))

	r := &recordingReplier{failPhoto: true}
	require.NoError(t, svc.GenerateImage(ctx, event(2, ""), r, "sunset"))

	assert.Equal(t, "flux-pro", completer.lastCall().model)
	require.Equal(t, []string{"send", "send", "delete"}, r.kinds())
	assert.Equal(t, "🖼 图片链接: https://cdn.example.com/x.webp\n🤖 Model: `flux-pro`", r.ops[1].text)
}

func TestGenerateImage_NoLinkSendsText(t *testing.T) {
	completer := &fakeCompleter{reply: "I cannot draw that."}
	svc, _ := newImages(t, completer)
	r := &recordingReplier{}

	require.NoError(t, svc.GenerateImage(context.Background(), event(3, ""), r, "something"))

	require.Equal(t, []string{"send", "send", "delete"}, r.kinds())
	assert.Equal(t, "🎨 **生成结果**:\nI cannot draw that.", r.ops[1].text)
}

func TestGenerateImage_UpstreamFailure(t *testing.T) {
	completer := &fakeCompleter{err: &xerr.UpstreamError{Model: "dall-e-3", Err: errors.New("content policy")}}
	svc, titler := newImages(t, completer)
	r := &recordingReplier{}

	require.NoError(t, svc.GenerateImage(context.Background(), event(4, ""), r, "something"))

	require.Equal(t, []string{"send", "edit"}, r.kinds())
	assert.Equal(t, "❌ 绘图失败: content policy", r.ops[1].text)
	assert.Empty(t, titler.calls)
}

func TestExtractGeneratedURL(t *testing.T) {
	cases := map[string]string{
		"![a](https://x/a.png)":            "https://x/a.png",
		"see [here](https://x/b) for more": "https://x/b",
		"link: https://x/c.jpg done":       "https://x/c.jpg",
		"no link":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractGeneratedURL(in), in)
	}
}

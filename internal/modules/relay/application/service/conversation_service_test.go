package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/xerr"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversation(t *testing.T, completer Completer, settings Settings) (ConversationService, *fakeTitler, *sessionResolver) {
	t.Helper()
	store := newTestStore(t)
	titler := &fakeTitler{}
	svc := NewConversationService(store, completer, titler, NewSessionLocks(), settings)
	return svc, titler, svc.(*conversationServiceImpl).resolver
}

func currentMessages(t *testing.T, svc ConversationService, userID int64) []*entity.Message {
	t.Helper()
	impl := svc.(*conversationServiceImpl)
	sess, err := impl.resolver.current(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	msgs, err := impl.store.GetMessages(context.Background(), sess.Id, 0)
	require.NoError(t, err)
	return msgs
}

func TestHandleMessage_PlaceholderEditedAndTitledOnce(t *testing.T) {
	completer := &fakeCompleter{reply: "Hello **there**"}
	svc, titler, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{}
	ctx := context.Background()

	require.NoError(t, svc.HandleMessage(ctx, event(1, "hi"), r))

	assert.Equal(t, []string{"send", "edit"}, r.kinds())
	assert.Equal(t, "🔄 正在思考中...", r.ops[0].text)
	assert.Equal(t, r.ops[0].ref, r.ops[1].ref)
	assert.Equal(t, "Hello **there**", r.ops[1].text)
	assert.Equal(t, transport.FormatMarkdown, r.ops[1].format)

	require.Len(t, titler.calls, 1)
	assert.Equal(t, "hi", titler.calls[0].question)
	assert.Equal(t, "Hello **there**", titler.calls[0].answer)

	require.NoError(t, svc.HandleMessage(ctx, event(1, "again"), r))
	assert.Len(t, titler.calls, 1)

	msgs := currentMessages(t, svc, 1)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{entity.RoleUser, entity.RoleAssistant, entity.RoleUser, entity.RoleAssistant},
		[]string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, "gpt-test", completer.lastCall().model)
}

func TestHandleMessage_ContextWindowIsCapped(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	settings := testSettings()
	settings.MaxContextMessages = 3
	svc, _, _ := newConversation(t, completer, settings)
	r := &recordingReplier{}
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, svc.HandleMessage(ctx, event(7, text), r))
	}

	msgs := completer.lastCall().msgs
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestHandleMessage_LongReplyReplacesPlaceholderWithChunks(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "line of reply text"
	}
	completer := &fakeCompleter{reply: strings.Join(lines, "\n")}
	settings := testSettings()
	settings.MaxMessageLength = 60
	svc, _, _ := newConversation(t, completer, settings)
	r := &recordingReplier{}

	require.NoError(t, svc.HandleMessage(context.Background(), event(2, "long please"), r))

	kinds := r.kinds()
	require.Greater(t, len(kinds), 3)
	assert.Equal(t, "send", kinds[0])
	assert.Equal(t, "delete", kinds[1])
	assert.Equal(t, r.ops[0].ref, r.ops[1].ref)
	for _, op := range r.ops[2:] {
		assert.Equal(t, "send", op.kind)
		assert.LessOrEqual(t, len([]rune(op.text)), 60)
	}
}

func TestHandleMessage_ImageReplyFallsBackToLink(t *testing.T) {
	completer := &fakeCompleter{reply: "![cat](http://x/cat.png)\nHere is a cat."}
	svc, _, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{failPhoto: true}

	require.NoError(t, svc.HandleMessage(context.Background(), event(3, "draw a cat"), r))

	require.Equal(t, []string{"send", "delete", "send", "send"}, r.kinds())
	assert.Equal(t, "🖼 图片链接: http://x/cat.png\n🤖 Model: `gpt-test`", r.ops[2].text)
	assert.Equal(t, "Here is a cat.", r.ops[3].text)
}

func TestHandleMessage_ImageReplySendsPhotos(t *testing.T) {
	completer := &fakeCompleter{reply: "http://x/1.png\nhttp://x/2.jpg"}
	svc, _, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{}

	require.NoError(t, svc.HandleMessage(context.Background(), event(3, "two images"), r))

	require.Equal(t, []string{"send", "delete", "photo", "photo"}, r.kinds())
	assert.Equal(t, "http://x/1.png", r.ops[2].url)
	assert.Equal(t, "🔗 http://x/1.png\n\n🤖 Model: `gpt-test`", r.ops[2].text)
	assert.Equal(t, "http://x/2.jpg", r.ops[3].url)
}

func TestHandleMessage_MarkdownRejectedFallsBackToPlain(t *testing.T) {
	completer := &fakeCompleter{reply: "snake_case_name"}
	svc, _, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{failMarkdown: true}

	require.NoError(t, svc.HandleMessage(context.Background(), event(4, "hi"), r))

	require.Equal(t, []string{"send", "edit"}, r.kinds())
	assert.Equal(t, transport.FormatPlain, r.ops[1].format)
	assert.Equal(t, "snake_case_name", r.ops[1].text)
}

func TestHandleMessage_UpstreamErrorShownOnPlaceholder(t *testing.T) {
	completer := &fakeCompleter{err: &xerr.UpstreamError{Model: "gpt-test", Err: errors.New("insufficient_quota")}}
	svc, titler, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{}

	require.NoError(t, svc.HandleMessage(context.Background(), event(5, "hi"), r))

	require.Equal(t, []string{"send", "edit"}, r.kinds())
	assert.Equal(t, "❌ 请求失败: insufficient_quota\n\n可能是模型 `gpt-test` 配置有误或额度不足。", r.ops[1].text)
	assert.Empty(t, titler.calls)

	msgs := currentMessages(t, svc, 5)
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.RoleUser, msgs[0].Role)
}

func TestHandlePhoto_BuildsMultipartLastTurn(t *testing.T) {
	completer := &fakeCompleter{reply: "A small red square."}
	svc, titler, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{}
	ctx := context.Background()

	require.NoError(t, svc.HandleMessage(ctx, event(6, "hello"), r))

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	ev := transport.Event{UserID: 6, DisplayName: "tester", PhotoData: png}
	require.NoError(t, svc.HandlePhoto(ctx, ev, r))

	msgs := completer.lastCall().msgs
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "A small red square.", msgs[1].Content)

	last := msgs[2]
	assert.Equal(t, schema.User, last.Role)
	require.Len(t, last.MultiContent, 2)
	assert.Equal(t, defaultPhotoCaption, last.MultiContent[0].Text)
	require.NotNil(t, last.MultiContent[1].ImageURL)
	assert.True(t, strings.HasPrefix(last.MultiContent[1].ImageURL.URL, "data:image/png;base64,"))

	stored := currentMessages(t, svc, 6)
	require.Len(t, stored, 4)
	assert.Equal(t, "[图片] "+defaultPhotoCaption, stored[2].Content)
	assert.Equal(t, entity.KindImage, stored[2].Kind)
	assert.Len(t, titler.calls, 1)
}

func TestHandlePhoto_UpstreamErrorMentionsVision(t *testing.T) {
	completer := &fakeCompleter{err: &xerr.UpstreamError{Model: "gpt-test", Err: errors.New("image input not supported")}}
	svc, _, _ := newConversation(t, completer, testSettings())
	r := &recordingReplier{}

	ev := transport.Event{UserID: 8, PhotoData: []byte{0xff, 0xd8, 0xff, 0xe0}, Caption: "what is this"}
	require.NoError(t, svc.HandlePhoto(context.Background(), ev, r))

	assert.Equal(t, "🔄 正在分析图片...", r.ops[0].text)
	assert.Contains(t, r.last().text, "模型 `gpt-test` 可能不支持图像识别。")
}

func TestHandleMessage_ConcurrentTurnsDoNotInterleave(t *testing.T) {
	completer := &fakeCompleter{reply: "ok", delay: 20 * time.Millisecond}
	svc, _, resolver := newConversation(t, completer, testSettings())
	ctx := context.Background()

	_, err := resolver.ensure(ctx, event(9, ""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.HandleMessage(ctx, event(9, "ping"), &recordingReplier{}))
		}()
	}
	wg.Wait()

	msgs := currentMessages(t, svc, 9)
	require.Len(t, msgs, 8)
	for i, m := range msgs {
		if i%2 == 0 {
			assert.Equal(t, entity.RoleUser, m.Role)
		} else {
			assert.Equal(t, entity.RoleAssistant, m.Role)
		}
	}
}

func TestPhotoDataURL_DefaultsToJPEG(t *testing.T) {
	assert.True(t, strings.HasPrefix(photoDataURL([]byte("not an image")), "data:image/jpeg;base64,"))
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoTitler_ScheduleRenamesSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, 1, "tester"))
	id, err := store.CreateSession(ctx, 1, "claude-3", "")
	require.NoError(t, err)

	completer := &fakeCompleter{reply: "  Go 并发入门 \n"}
	titler := NewAutoTitler(completer, store, "gpt-test", 0, time.Second)
	titler.Schedule(id, "how do goroutines work?", "They are lightweight threads.")
	titler.Wait()

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Go 并发入门", sess.Title)

	call := completer.lastCall()
	assert.Equal(t, "gpt-test", call.model)
	assert.Equal(t, 30, call.maxTokens)
	require.Len(t, call.msgs, 1)
	assert.True(t, strings.HasPrefix(call.msgs[0].Content, "User: how do goroutines work?\nAI: They are lightweight threads."))
}

func TestAutoTitler_FailureKeepsTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, 1, "tester"))
	id, err := store.CreateSession(ctx, 1, "gpt-test", "")
	require.NoError(t, err)

	titler := NewAutoTitler(&fakeCompleter{err: errors.New("rate limited")}, store, "gpt-test", 30, time.Second)
	titler.Schedule(id, "q", "a")
	titler.Wait()

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultSessionTitle, sess.Title)

	assert.Error(t, titler.Generate(ctx, id, "q", "a"))
}

func TestAutoTitler_EmptyTitleIsError(t *testing.T) {
	titler := NewAutoTitler(&fakeCompleter{reply: "   "}, nil, "gpt-test", 30, time.Second)
	assert.Error(t, titler.Generate(context.Background(), 1, "q", "a"))
}

func TestAutoTitler_TruncatesLongTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, 1, "tester"))
	id, err := store.CreateSession(ctx, 1, "gpt-test", "")
	require.NoError(t, err)

	titler := NewAutoTitler(&fakeCompleter{reply: strings.Repeat("标", 100)}, store, "gpt-test", 30, time.Second)
	require.NoError(t, titler.Generate(ctx, id, "q", "a"))

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, []rune(sess.Title), maxTitleRunes)
}

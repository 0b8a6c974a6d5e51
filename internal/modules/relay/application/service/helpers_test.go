package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/internal/modules/relay/infrastructure/llm"
	"ChatRelay/internal/modules/relay/infrastructure/persistence"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, persistence.AutoMigrate(db))
	store := persistence.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSettings() Settings {
	return Settings{
		DefaultModel:       "gpt-test",
		ImageModel:         "dall-e-3",
		MaxContextMessages: 20,
		MaxMessageLength:   4000,
		MaxImages:          3,
		ModelsPerPage:      5,
		HistoryLimit:       10,
		ReplayLimit:        10,
		TitleMaxTokens:     30,
		ErrorTextLimit:     500,
		TitleTimeout:       time.Second,
	}
}

type completeCall struct {
	model     string
	msgs      []*schema.Message
	maxTokens int
}

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls []completeCall
}

func (f *fakeCompleter) Complete(_ context.Context, model string, msgs []*schema.Message, opts ...llm.CallOption) (string, error) {
	var co llm.CallOptions
	for _, opt := range opts {
		opt(&co)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completeCall{model: model, msgs: msgs, maxTokens: co.MaxTokens})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) lastCall() completeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type scheduledTitle struct {
	sessionID int64
	question  string
	answer    string
}

type fakeTitler struct {
	mu    sync.Mutex
	calls []scheduledTitle
}

func (f *fakeTitler) Schedule(sessionID int64, question, answer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduledTitle{sessionID: sessionID, question: question, answer: answer})
}

type fakeCatalog struct {
	models []string
}

func (f *fakeCatalog) Models(context.Context) []string { return f.models }

type replyOp struct {
	kind   string
	ref    transport.MessageRef
	text   string
	format transport.Format
	url    string
	rows   [][]transport.Button
}

// recordingReplier 只记录成功的投递
type recordingReplier struct {
	mu           sync.Mutex
	ops          []replyOp
	seq          int
	failMarkdown bool
	failPhoto    bool
}

var errMarkdownRejected = errors.New("can't parse entities")

func (r *recordingReplier) nextRef() transport.MessageRef {
	r.seq++
	return transport.MessageRef(fmt.Sprintf("m%d", r.seq))
}

func (r *recordingReplier) SendText(_ context.Context, text string, format transport.Format) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkdown && format == transport.FormatMarkdown {
		return "", errMarkdownRejected
	}
	ref := r.nextRef()
	r.ops = append(r.ops, replyOp{kind: "send", ref: ref, text: text, format: format})
	return ref, nil
}

func (r *recordingReplier) EditText(_ context.Context, ref transport.MessageRef, text string, format transport.Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkdown && format == transport.FormatMarkdown {
		return errMarkdownRejected
	}
	r.ops = append(r.ops, replyOp{kind: "edit", ref: ref, text: text, format: format})
	return nil
}

func (r *recordingReplier) SendPhoto(_ context.Context, url, caption string, format transport.Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPhoto {
		return errors.New("wrong file identifier/HTTP URL specified")
	}
	r.ops = append(r.ops, replyOp{kind: "photo", url: url, text: caption, format: format})
	return nil
}

func (r *recordingReplier) SendMenu(_ context.Context, text string, rows [][]transport.Button) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.nextRef()
	r.ops = append(r.ops, replyOp{kind: "menu", ref: ref, text: text, rows: rows})
	return ref, nil
}

func (r *recordingReplier) EditMenu(_ context.Context, ref transport.MessageRef, text string, rows [][]transport.Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, replyOp{kind: "edit_menu", ref: ref, text: text, rows: rows})
	return nil
}

func (r *recordingReplier) Delete(_ context.Context, ref transport.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, replyOp{kind: "delete", ref: ref})
	return nil
}

func (r *recordingReplier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.kind)
	}
	return out
}

func (r *recordingReplier) last() replyOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[len(r.ops)-1]
}

func (r *recordingReplier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

func event(userID int64, text string) transport.Event {
	return transport.Event{UserID: userID, DisplayName: "tester", Text: text}
}

package handler

import (
	"context"
	"sync"

	"ChatRelay/internal/modules/relay/application/dto/respond"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/util"
	"ChatRelay/pkg/ws"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

// transcriptReplier 记录一次请求内的全部投递操作，并实时推送到用户的 websocket
type transcriptReplier struct {
	mu     sync.Mutex
	userID int64
	ops    []respond.DeliveryOp
	hub    *ws.Hub
	probe  PhotoProbe
}

func newTranscriptReplier(userID int64, hub *ws.Hub, probe PhotoProbe) *transcriptReplier {
	return &transcriptReplier{userID: userID, hub: hub, probe: probe}
}

func (t *transcriptReplier) record(op respond.DeliveryOp) {
	t.mu.Lock()
	t.ops = append(t.ops, op)
	t.mu.Unlock()

	if t.hub == nil {
		return
	}
	if err := t.hub.PushJSON(t.userID, op); err != nil {
		zlog.Warn("push delivery op failed", zap.Int64("user_id", t.userID), zap.String("op", op.Op), zap.Error(err))
	}
}

func (t *transcriptReplier) Ops() []respond.DeliveryOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]respond.DeliveryOp, len(t.ops))
	copy(out, t.ops)
	return out
}

func (t *transcriptReplier) SendText(_ context.Context, text string, format transport.Format) (transport.MessageRef, error) {
	ref := util.GenerateShortUUID()
	t.record(respond.DeliveryOp{Op: respond.OpSend, Ref: ref, Text: text, Format: format.String()})
	return transport.MessageRef(ref), nil
}

func (t *transcriptReplier) EditText(_ context.Context, ref transport.MessageRef, text string, format transport.Format) error {
	t.record(respond.DeliveryOp{Op: respond.OpEdit, Ref: string(ref), Text: text, Format: format.String()})
	return nil
}

// SendPhoto 先探测链接可达，不可达时返回错误由调用方降级为文本链接
func (t *transcriptReplier) SendPhoto(ctx context.Context, url, caption string, format transport.Format) error {
	if t.probe != nil {
		if err := t.probe.Check(ctx, url); err != nil {
			return err
		}
	}
	t.record(respond.DeliveryOp{Op: respond.OpPhoto, Ref: util.GenerateShortUUID(), URL: url, Text: caption, Format: format.String()})
	return nil
}

func (t *transcriptReplier) SendMenu(_ context.Context, text string, rows [][]transport.Button) (transport.MessageRef, error) {
	ref := util.GenerateShortUUID()
	t.record(respond.DeliveryOp{Op: respond.OpMenu, Ref: ref, Text: text, Format: transport.FormatMarkdown.String(), Buttons: rows})
	return transport.MessageRef(ref), nil
}

func (t *transcriptReplier) EditMenu(_ context.Context, ref transport.MessageRef, text string, rows [][]transport.Button) error {
	t.record(respond.DeliveryOp{Op: respond.OpEditMenu, Ref: string(ref), Text: text, Format: transport.FormatMarkdown.String(), Buttons: rows})
	return nil
}

func (t *transcriptReplier) Delete(_ context.Context, ref transport.MessageRef) error {
	t.record(respond.DeliveryOp{Op: respond.OpDelete, Ref: string(ref)})
	return nil
}

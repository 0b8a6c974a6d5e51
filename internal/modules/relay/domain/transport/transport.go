package transport

import "context"

// Format 消息渲染方式
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

func (f Format) String() string {
	if f == FormatMarkdown {
		return "markdown"
	}
	return "plain"
}

// MessageRef 已发送消息的句柄，用于后续编辑/删除
type MessageRef string

// Event 一次入站事件
type Event struct {
	UserID      int64
	DisplayName string
	// Text 普通消息正文或命令后的参数串
	Text string
	// PhotoData 非空表示图片消息
	PhotoData []byte
	Caption   string
	// MessageRef 回调事件所在的消息（菜单），其余为空
	MessageRef MessageRef
}

// IsPhoto 是否图片消息
func (e Event) IsPhoto() bool {
	return len(e.PhotoData) > 0
}

// Button 内联按钮
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Replier 传输层提供的投递能力
type Replier interface {
	SendText(ctx context.Context, text string, format Format) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, format Format) error
	SendPhoto(ctx context.Context, url, caption string, format Format) error
	SendMenu(ctx context.Context, text string, rows [][]Button) (MessageRef, error)
	EditMenu(ctx context.Context, ref MessageRef, text string, rows [][]Button) error
	Delete(ctx context.Context, ref MessageRef) error
}

// 回调数据前缀
const (
	CallbackSession    = "sess:"
	CallbackModelSel   = "model_sel:"
	CallbackModelPage  = "model_page:"
	CallbackModelClose = "model_close"
)

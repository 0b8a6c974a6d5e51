package respond

import "ChatRelay/internal/modules/relay/domain/transport"

// 投递操作类型
const (
	OpSend     = "send"
	OpEdit     = "edit"
	OpPhoto    = "photo"
	OpMenu     = "menu"
	OpEditMenu = "edit_menu"
	OpDelete   = "delete"
)

// DeliveryOp 一次投递操作，同时写入响应并推送到用户的 websocket
type DeliveryOp struct {
	Op      string               `json:"op"`
	Ref     string               `json:"ref,omitempty"`
	Text    string               `json:"text,omitempty"`
	Format  string               `json:"format,omitempty"`
	URL     string               `json:"url,omitempty"`
	Buttons [][]transport.Button `json:"buttons,omitempty"`
}

type RelayRespond struct {
	RequestId string       `json:"request_id"`
	Ops       []DeliveryOp `json:"ops"`
}

type ModelListRespond struct {
	Models    []string `json:"models"`
	Page      int      `json:"page"`
	TotalPage int      `json:"total_page"`
	Total     int      `json:"total"`
}

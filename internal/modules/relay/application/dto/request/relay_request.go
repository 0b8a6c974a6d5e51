package request

// MessageRequest 普通消息；photo_base64 非空时按图片消息处理
type MessageRequest struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	PhotoBase64 string `json:"photo_base64"`
	Caption     string `json:"caption"`
}

type CommandRequest struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Command     string `json:"command" binding:"required"`
	Args        string `json:"args"`
}

// CallbackRequest message_ref 为菜单所在消息（来自之前的投递记录）
type CallbackRequest struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Data        string `json:"data" binding:"required"`
	MessageRef  string `json:"message_ref"`
}

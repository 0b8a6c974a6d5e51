package entity

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	KindText  = "text"
	KindImage = "image"
)

// DefaultSessionTitle 新会话的占位标题，自动标题成功后被覆盖
const DefaultSessionTitle = "New Chat"

// User 平台用户，首次接触时创建，不会被删除
type User struct {
	Id               int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	DisplayName      string    `gorm:"column:display_name;type:varchar(128)"`
	CurrentSessionId *int64    `gorm:"column:current_session_id"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (User) TableName() string {
	return "users"
}

// Session 一条连续对话，绑定一个上游模型
type Session struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserId       int64     `gorm:"column:user_id;not null;index:idx_sessions_user"`
	Title        string    `gorm:"column:title;type:varchar(255);not null"`
	Model        string    `gorm:"column:model;type:varchar(128);not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastActiveAt time.Time `gorm:"column:last_active_at;not null"`
}

func (Session) TableName() string {
	return "sessions"
}

// Message 只追加，按 id 排序即为会话内的时间顺序
type Message struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionId int64     `gorm:"column:session_id;not null;index:idx_messages_session"`
	Role      string    `gorm:"column:role;type:varchar(16);not null"`
	// 图片消息存为 "[图片] 说明"，原始图片不落库
	Content   string    `gorm:"column:content;type:text"`
	Kind      string    `gorm:"column:kind;type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Message) TableName() string {
	return "messages"
}

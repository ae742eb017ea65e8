package models

import "time"

// Message 群组消息，只追加不修改
// Date 由调用方显式提供，不使用数据库默认值
type Message struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;index" json:"group_id"`
	SenderID uint      `gorm:"not null;index" json:"sender_id"`
	Body     string    `gorm:"type:text;not null" json:"body"`
	Date     time.Time `gorm:"not null;index" json:"date"`

	Group  *MessageGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	Sender *User         `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageRead 已读记录中间表，与群组成员关系相互独立
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;index" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`

	Message *Message `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
	User    *User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (MessageRead) TableName() string {
	return "message_reads"
}

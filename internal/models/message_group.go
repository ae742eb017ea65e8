package models

import "time"

// MaxGroupNameLength 群组名称长度上限
const MaxGroupNameLength = 140

// MessageGroup 消息群组
type MessageGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:140;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageGroup) TableName() string {
	return "message_groups"
}

// GroupMember 群组成员中间表
// ID 自增，决定成员的插入顺序（用于名称截断展示）
type GroupMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_group_user;index" json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`

	Group *MessageGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	User  *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

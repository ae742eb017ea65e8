package models

import (
	"strings"
	"time"
)

// User 员工账号，同时承担在线状态
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	UserName     string    `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	DateOfBirth  time.Time `gorm:"type:date" json:"date_of_birth"`
	PhoneNumber  string    `gorm:"size:30" json:"phone_number"`
	IsAdmin      bool      `gorm:"default:false" json:"is_admin"`

	SupervisorID *uint       `gorm:"index" json:"supervisor_id"`
	Supervisor   *Supervisor `gorm:"foreignKey:SupervisorID;constraint:OnDelete:SET NULL" json:"supervisor,omitempty"`

	IsOnline       bool       `gorm:"default:false;index" json:"is_online"`
	LastLoginTime  *time.Time `json:"last_login_time"`
	LastLogoutTime *time.Time `json:"last_logout_time"`

	Tasks []Task `gorm:"many2many:user_tasks" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// FullName 返回 "名 姓"，两者都为空时退回用户名
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

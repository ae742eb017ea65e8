package models

import "time"

// Task 员工完成的工作记录，通过 user_tasks 与用户多对多关联
type Task struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	Link          string    `json:"link"`
	DateCompleted time.Time `gorm:"not null" json:"date_completed"`
}

func (Task) TableName() string {
	return "tasks"
}

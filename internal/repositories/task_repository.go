package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/StaffPortal/internal/models"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateForUser 创建任务并关联到用户
func (r *TaskRepository) CreateForUser(ctx context.Context, userID uint, task *models.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		// 直接写入中间表
		return tx.Table("user_tasks").Create(map[string]any{"user_id": userID, "task_id": task.ID}).Error
	})
}

// ListForUser 按完成时间倒序
func (r *TaskRepository) ListForUser(ctx context.Context, userID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Joins("JOIN user_tasks ON user_tasks.task_id = tasks.id").
		Where("user_tasks.user_id = ?", userID).
		Order("tasks.date_completed DESC").
		Order("tasks.id DESC").
		Find(&tasks).Error
	return tasks, err
}

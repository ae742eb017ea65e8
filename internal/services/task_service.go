package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	"github.com/Gopher0727/StaffPortal/internal/utils"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
)

const (
	maxTaskTitleLength = 255

	MsgTaskTitleRequired = "Task title is required."
	MsgTaskTitleTooLong  = "Task title is too long."
	MsgInvalidLink       = "Enter a valid URL."
)

// Actor 当前登录用户
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// CanManage 本人或管理员可以查看和添加某个员工的任务
func (a Actor) CanManage(userID uint) bool {
	return a.IsAdmin || a.UserID == userID
}

type TaskRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Link          string     `json:"link"`
	DateCompleted *time.Time `json:"date_completed"`
}

type TaskService struct {
	taskRepo *repositories.TaskRepository
	userRepo *repositories.UserRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewTaskService(taskRepo *repositories.TaskRepository, userRepo *repositories.UserRepository, log *logger.Logger) *TaskService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &TaskService{taskRepo: taskRepo, userRepo: userRepo, logger: log, now: time.Now}
}

func (s *TaskService) authorize(ctx context.Context, actor Actor, userID uint) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	if !actor.CanManage(userID) {
		return ErrForbidden
	}
	return nil
}

// ListTasks 按完成时间倒序
func (s *TaskService) ListTasks(ctx context.Context, actor Actor, userID uint) ([]models.Task, error) {
	if err := s.authorize(ctx, actor, userID); err != nil {
		return nil, err
	}
	return s.taskRepo.ListForUser(ctx, userID)
}

// CreateTask 为 userID 添加一条任务，完成时间缺省为当前时间
func (s *TaskService) CreateTask(ctx context.Context, actor Actor, userID uint, req *TaskRequest) (*models.Task, error) {
	if err := s.authorize(ctx, actor, userID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validation(MsgTaskTitleRequired)
	}
	if utf8.RuneCountInString(title) > maxTaskTitleLength {
		return nil, validation(MsgTaskTitleTooLong)
	}
	link := strings.TrimSpace(req.Link)
	if link != "" && !utils.ValidateURL(link) {
		return nil, validation(MsgInvalidLink)
	}

	completed := s.now().UTC()
	if req.DateCompleted != nil && !req.DateCompleted.IsZero() {
		completed = req.DateCompleted.UTC()
	}

	task := &models.Task{
		Title:         title,
		Description:   req.Description,
		Link:          link,
		DateCompleted: completed,
	}
	if err := s.taskRepo.CreateForUser(ctx, userID, task); err != nil {
		s.logger.ErrorContext(ctx, "create task failed", zap.Uint("user_id", userID), zap.Error(err))
		return nil, validation(MsgGenericFailure)
	}
	return task, nil
}

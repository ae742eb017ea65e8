package services

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
)

const MsgProfileUpdated = "User information updated successfully."

type UserService struct {
	userRepo *repositories.UserRepository
	presence *PresenceTracker
	logger   *logger.Logger
}

// NewUserService presence 为 nil 时在线状态只看数据库
func NewUserService(userRepo *repositories.UserRepository, presence *PresenceTracker, log *logger.Logger) *UserService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &UserService{userRepo: userRepo, presence: presence, logger: log}
}

// OnlineStatus 用户当前的在线状态
type OnlineStatus struct {
	UserID         uint       `json:"user_id"`
	IsOnline       bool       `json:"is_online"`
	LastLoginTime  *time.Time `json:"last_login_time"`
	LastLogoutTime *time.Time `json:"last_logout_time"`
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Directory 员工通讯录：在线的在前，其余按最近登录时间倒序，从未登录的排最后
func (s *UserService) Directory(ctx context.Context) ([]models.User, error) {
	users, err := s.userRepo.ListByPresence(ctx)
	if err != nil || s.presence == nil {
		return users, err
	}

	onlineIDs, err := s.presence.OnlineUserIDs(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "load online users failed", zap.Error(err))
		return users, nil
	}
	online := lo.SliceToMap(onlineIDs, func(id uint) (uint, bool) { return id, true })
	for i := range users {
		users[i].IsOnline = online[users[i].ID]
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.IsOnline != b.IsOnline {
			return a.IsOnline
		}
		return loggedInAfter(a.LastLoginTime, b.LastLoginTime)
	})
	return users, nil
}

func loggedInAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

// Recipients 新建会话时可选的收件人，不包含自己
func (s *UserService) Recipients(ctx context.Context, userID uint) ([]models.User, error) {
	return s.userRepo.ListExcluding(ctx, userID)
}

func (s *UserService) CurrentOnlineStatus(ctx context.Context, userID uint) (*OnlineStatus, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	online := user.IsOnline
	if s.presence != nil {
		if online, err = s.presence.IsOnline(ctx, userID); err != nil {
			return nil, err
		}
	}
	return &OnlineStatus{
		UserID:         user.ID,
		IsOnline:       online,
		LastLoginTime:  user.LastLoginTime,
		LastLogoutTime: user.LastLogoutTime,
	}, nil
}

// UpdateProfile 与注册使用相同的校验，不修改密码；SupervisorID 为 nil 时清除主管
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, form *ProfileForm) (*models.User, error) {
	current, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated, err := normalizeProfile(ctx, s.userRepo, form, nil)
	if err != nil {
		if _, ok := IsValidation(err); ok {
			return nil, err
		}
		return nil, s.failure(ctx, err)
	}

	if updated.Email != current.Email {
		exists, err := s.userRepo.ExistsByEmail(ctx, updated.Email)
		if err != nil {
			return nil, s.failure(ctx, err)
		}
		if exists {
			return nil, validation(MsgEmailTaken)
		}
	}

	updated.ID = userID
	if err := s.userRepo.UpdateProfile(ctx, updated); err != nil {
		return nil, s.failure(ctx, err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *UserService) failure(ctx context.Context, err error) error {
	s.logger.ErrorContext(ctx, "update profile failed", zap.Error(err))
	return validation(MsgGenericFailure)
}

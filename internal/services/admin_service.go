package services

import (
	"context"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
)

// AdminStats 管理后台的统计数据
type AdminStats struct {
	AdminCount         int64   `json:"admin_count"`
	GroupCount         int64   `json:"group_count"`
	MessageCount       int64   `json:"message_count"`
	AvgMessagesByGroup float64 `json:"avg_messages_by_group"`
}

// AdminLogs 统计数据加上员工通讯录
type AdminLogs struct {
	Stats AdminStats    `json:"stats"`
	Users []models.User `json:"users"`
}

type AdminService struct {
	userRepo    *repositories.UserRepository
	groupRepo   *repositories.GroupRepository
	messageRepo *repositories.MessageRepository
}

func NewAdminService(userRepo *repositories.UserRepository, groupRepo *repositories.GroupRepository,
	messageRepo *repositories.MessageRepository,
) *AdminService {
	return &AdminService{userRepo: userRepo, groupRepo: groupRepo, messageRepo: messageRepo}
}

func (s *AdminService) Stats(ctx context.Context, actor Actor) (*AdminStats, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	var (
		stats AdminStats
		err   error
	)
	if stats.AdminCount, err = s.userRepo.CountAdmins(ctx); err != nil {
		return nil, err
	}
	if stats.GroupCount, err = s.groupRepo.Count(ctx); err != nil {
		return nil, err
	}
	if stats.MessageCount, err = s.messageRepo.Count(ctx); err != nil {
		return nil, err
	}
	stats.AvgMessagesByGroup = averagePerGroup(stats.MessageCount, stats.GroupCount)
	return &stats, nil
}

// averagePerGroup 任一计数为 0 时返回 0
func averagePerGroup(messages, groups int64) float64 {
	if messages == 0 || groups == 0 {
		return 0
	}
	return float64(messages) / float64(groups)
}

func (s *AdminService) Logs(ctx context.Context, actor Actor) (*AdminLogs, error) {
	stats, err := s.Stats(ctx, actor)
	if err != nil {
		return nil, err
	}
	users, err := s.userRepo.ListByPresence(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminLogs{Stats: *stats, Users: users}, nil
}

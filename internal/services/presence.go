package services

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
)

const onlineSetKey = "presence:online" // Redis Set, 成员是在线用户 ID

// PresenceTracker 在登录/登出时维护 is_online 与最近登录、登出时间
type PresenceTracker struct {
	userRepo *repositories.UserRepository
	redis    *redis.Client
	now      func() time.Time
}

// NewPresenceTracker redis 为 nil 时只写数据库
func NewPresenceTracker(userRepo *repositories.UserRepository, redis *redis.Client) *PresenceTracker {
	return &PresenceTracker{userRepo: userRepo, redis: redis, now: time.Now}
}

func (p *PresenceTracker) OnLogin(ctx context.Context, userID uint) error {
	if err := p.set(ctx, userID, true); err != nil {
		return err
	}
	if p.redis != nil {
		p.redis.SAdd(ctx, onlineSetKey, userID)
	}
	return nil
}

func (p *PresenceTracker) OnLogout(ctx context.Context, userID uint) error {
	if err := p.set(ctx, userID, false); err != nil {
		return err
	}
	if p.redis != nil {
		p.redis.SRem(ctx, onlineSetKey, userID)
	}
	return nil
}

func (p *PresenceTracker) set(ctx context.Context, userID uint, online bool) error {
	err := p.userRepo.UpdatePresence(ctx, userID, online, p.now().UTC())
	if isNotFound(err) {
		return ErrUserNotFound
	}
	return err
}

// OnlineUserIDs 优先读 Redis 在线集合；没有 Redis 或集合不存在（重启、全部登出）时退回数据库
func (p *PresenceTracker) OnlineUserIDs(ctx context.Context) ([]uint, error) {
	if p.redis != nil {
		members, err := p.redis.SMembers(ctx, onlineSetKey).Result()
		if err == nil && len(members) > 0 {
			return lo.FilterMap(members, func(m string, _ int) (uint, bool) {
				id, err := strconv.ParseUint(m, 10, 64)
				return uint(id), err == nil
			}), nil
		}
	}

	users, err := p.userRepo.ListByPresence(ctx)
	if err != nil {
		return nil, err
	}
	online := lo.Filter(users, func(u models.User, _ int) bool { return u.IsOnline })
	return lo.Map(online, func(u models.User, _ int) uint { return u.ID }), nil
}

// IsOnline 与 OnlineUserIDs 使用同样的来源
func (p *PresenceTracker) IsOnline(ctx context.Context, userID uint) (bool, error) {
	if p.redis != nil {
		pipe := p.redis.Pipeline()
		exists := pipe.Exists(ctx, onlineSetKey)
		member := pipe.SIsMember(ctx, onlineSetKey, userID)
		if _, err := pipe.Exec(ctx); err == nil && exists.Val() > 0 {
			return member.Val(), nil
		}
	}

	user, err := p.userRepo.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return user.IsOnline, nil
}

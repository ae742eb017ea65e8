package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Gopher0727/StaffPortal/internal/models"
)

const (
	userCacheKeyPrefix = "user:info:" // Redis String, 值是 user JSON
	userCacheTTL       = 1 * time.Hour
)

// profileColumns 是资料更新允许写入的列，密码和在线状态走各自的方法
var profileColumns = []string{"email", "username", "first_name", "last_name", "date_of_birth", "phone_number", "supervisor_id", "updated_at"}

type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewUserRepository redis 可以为 nil，此时不使用缓存
func NewUserRepository(db *gorm.DB, redis *redis.Client) *UserRepository {
	return &UserRepository{db: db, redis: redis}
}

func cacheKey(id uint) string {
	return fmt.Sprintf("%s%d", userCacheKeyPrefix, id)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据 ID 获取用户 (带缓存)
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, cacheKey(id)).Result()
		if err == nil {
			var user models.User
			if json.Unmarshal([]byte(val), &user) == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}

	r.cache(ctx, &user)
	return &user, nil
}

// GetByIDs 批量获取用户，不存在的 ID 不会出现在结果中
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	result := make(map[uint]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missingIDs := ids
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = cacheKey(id)
		}

		vals, err := r.redis.MGet(ctx, keys...).Result()
		if err == nil {
			missingIDs = nil
			for i, val := range vals {
				var user models.User
				if s, ok := val.(string); ok && json.Unmarshal([]byte(s), &user) == nil {
					result[ids[i]] = &user
					continue
				}
				missingIDs = append(missingIDs, ids[i])
			}
		}
	}

	if len(missingIDs) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", missingIDs).Find(&users).Error; err != nil {
		return result, err
	}
	for i := range users {
		u := &users[i]
		result[u.ID] = u
		r.cache(ctx, u)
	}
	return result, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// UpdateProfile 只写资料列 (同时清除缓存)
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).Select(profileColumns).Updates(user).Error
	if err != nil {
		return err
	}
	r.evict(ctx, user.ID)
	return nil
}

// UpdatePresence 登录时置 is_online 并记录 last_login_time，登出时记录 last_logout_time
func (r *UserRepository) UpdatePresence(ctx context.Context, id uint, online bool, at time.Time) error {
	updates := map[string]any{"is_online": online}
	if online {
		updates["last_login_time"] = at
	} else {
		updates["last_logout_time"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.evict(ctx, id)
	return nil
}

// ListExcluding 返回除指定用户外的所有用户，按姓名排序
func (r *UserRepository) ListExcluding(ctx context.Context, id uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("id <> ?", id).
		Order("first_name, last_name, id").
		Find(&users).Error
	return users, err
}

// ListByPresence 在线用户在前，其次按最近登录时间倒序，从未登录的排最后
func (r *UserRepository) ListByPresence(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Order("is_online DESC").
		Order("last_login_time IS NULL").
		Order("last_login_time DESC").
		Order("id").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&count).Error
	return count, err
}

func (r *UserRepository) CreateSupervisor(ctx context.Context, s *models.Supervisor) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *UserRepository) GetSupervisor(ctx context.Context, id uint) (*models.Supervisor, error) {
	var s models.Supervisor
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *UserRepository) cache(ctx context.Context, user *models.User) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(user); err == nil {
		r.redis.Set(ctx, cacheKey(user.ID), data, userCacheTTL)
	}
}

func (r *UserRepository) evict(ctx context.Context, id uint) {
	if r.redis != nil {
		r.redis.Del(ctx, cacheKey(id))
	}
}

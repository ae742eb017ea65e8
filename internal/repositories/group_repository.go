package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/StaffPortal/internal/models"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// memberRows 按给定顺序构造成员行，重复 ID 只保留第一次出现
func memberRows(groupID uint, userIDs []uint, at time.Time) []models.GroupMember {
	seen := make(map[uint]struct{}, len(userIDs))
	rows := make([]models.GroupMember, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, models.GroupMember{GroupID: groupID, UserID: id, JoinedAt: at})
	}
	return rows
}

func createGroup(tx *gorm.DB, group *models.MessageGroup, memberIDs []uint) error {
	if err := tx.Create(group).Error; err != nil {
		return err
	}
	// 直接插入中间表记录，插入顺序即展示顺序
	rows := memberRows(group.ID, memberIDs, group.CreatedAt)
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// Create 创建群组并按顺序写入成员
func (r *GroupRepository) Create(ctx context.Context, group *models.MessageGroup, memberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createGroup(tx, group, memberIDs)
	})
}

// CreateWithMessage 在同一个事务中创建群组、成员、首条消息及其已读记录
// 任意一步失败都会整体回滚
func (r *GroupRepository) CreateWithMessage(ctx context.Context, group *models.MessageGroup, memberIDs []uint, msg *models.Message, readerIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createGroup(tx, group, memberIDs); err != nil {
			return err
		}
		msg.GroupID = group.ID
		return createMessage(tx, msg, readerIDs)
	})
}

// AddMembers 幂等地追加成员，已存在的成员被忽略；返回实际新增的数量
func (r *GroupRepository) AddMembers(ctx context.Context, groupID uint, userIDs []uint) (int64, error) {
	var added int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.MessageGroup{}, groupID).Error; err != nil {
			return err
		}
		rows := memberRows(groupID, userIDs, time.Now().UTC())
		if len(rows) == 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		added = res.RowsAffected
		return res.Error
	})
	return added, err
}

func (r *GroupRepository) GetByID(ctx context.Context, id uint) (*models.MessageGroup, error) {
	var group models.MessageGroup
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// IsMember 查询中间表，利用 (group_id, user_id) 唯一索引
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// Members 按加入顺序返回群组成员
func (r *GroupRepository) Members(ctx context.Context, groupID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.user_id = users.id").
		Where("group_members.group_id = ?", groupID).
		Order("group_members.id").
		Find(&users).Error
	return users, err
}

// MembersOf 批量加载多个群组的成员，每个群组内按加入顺序排列
func (r *GroupRepository) MembersOf(ctx context.Context, groupIDs []uint) (map[uint][]models.User, error) {
	result := make(map[uint][]models.User, len(groupIDs))
	if len(groupIDs) == 0 {
		return result, nil
	}

	var rows []models.GroupMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("group_id IN ?", groupIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.User != nil {
			result[row.GroupID] = append(result[row.GroupID], *row.User)
		}
	}
	return result, nil
}

// ListForUser 返回用户所在的全部群组（未排序）
func (r *GroupRepository) ListForUser(ctx context.Context, userID uint) ([]models.MessageGroup, error) {
	var groups []models.MessageGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = message_groups.id").
		Where("group_members.user_id = ?", userID).
		Find(&groups).Error
	return groups, err
}

// Delete 删除群组，消息、已读记录和成员关系由外键级联删除
func (r *GroupRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.MessageGroup{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GroupRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MessageGroup{}).Count(&count).Error
	return count, err
}

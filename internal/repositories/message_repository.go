package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/StaffPortal/internal/models"
)

// notReadBy 过滤掉用户已读的消息，参数为用户 ID
const notReadBy = "NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)"

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func readRows(messageID uint, userIDs []uint, at time.Time) []models.MessageRead {
	rows := make([]models.MessageRead, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.MessageRead{MessageID: messageID, UserID: id, ReadAt: at})
	}
	return rows
}

func createMessage(tx *gorm.DB, msg *models.Message, readerIDs []uint) error {
	if err := tx.Create(msg).Error; err != nil {
		return err
	}
	if len(readerIDs) == 0 {
		return nil
	}
	rows := readRows(msg.ID, readerIDs, msg.Date)
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// Create 追加一条消息，readerIDs 为创建时即视为已读的用户
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message, readerIDs ...uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createMessage(tx, msg, readerIDs)
	})
}

func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead 幂等，重复标记不会报错
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID uint, at time.Time) error {
	row := models.MessageRead{MessageID: messageID, UserID: userID, ReadAt: at}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// MarkGroupRead 把群组内用户尚未读过的消息全部标记为已读，返回新增条数
// 查询与写入之间被其他请求抢先标记的消息由 ON CONFLICT 跳过
func (r *MessageRepository) MarkGroupRead(ctx context.Context, groupID, userID uint, at time.Time) (int64, error) {
	var messageIDs []uint
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("messages.group_id = ? AND "+notReadBy, groupID, userID).
		Pluck("messages.id", &messageIDs).Error
	if err != nil || len(messageIDs) == 0 {
		return 0, err
	}

	rows := make([]models.MessageRead, len(messageIDs))
	for i, id := range messageIDs {
		rows[i] = models.MessageRead{MessageID: id, UserID: userID, ReadAt: at}
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

// ReadBy 返回已读该消息的用户 ID
func (r *MessageRepository) ReadBy(ctx context.Context, messageID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.MessageRead{}).
		Where("message_id = ?", messageID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// UnreadCountFor 统计用户所在群组中未读的消息数，按消息 ID 去重
func (r *MessageRepository) UnreadCountFor(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN group_members gm ON gm.group_id = messages.group_id AND gm.user_id = ?", userID).
		Where(notReadBy, userID).
		Distinct("messages.id").
		Count(&count).Error
	return count, err
}

// GroupHasUnread 群组中是否存在用户未读的消息，不检查成员关系
func (r *MessageRepository) GroupHasUnread(ctx context.Context, groupID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("messages.group_id = ?", groupID).
		Where(notReadBy, userID).
		Count(&count).Error
	return count > 0, err
}

// GroupsWithUnread 批量版本的 GroupHasUnread
func (r *MessageRepository) GroupsWithUnread(ctx context.Context, userID uint, groupIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(groupIDs))
	if len(groupIDs) == 0 {
		return result, nil
	}

	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("messages.group_id IN ?", groupIDs).
		Where(notReadBy, userID).
		Distinct().
		Pluck("messages.group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// latestOnly 保留每个群组中日期最大的消息，日期相同时取 ID 最大者
const latestOnly = "NOT EXISTS (SELECT 1 FROM messages newer WHERE newer.group_id = messages.group_id AND " +
	"(newer.date > messages.date OR (newer.date = messages.date AND newer.id > messages.id)))"

// Latest 返回群组最新的一条消息，没有消息时返回 nil
func (r *MessageRepository) Latest(ctx context.Context, groupID uint) (*models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("messages.group_id = ?", groupID).
		Where(latestOnly).
		Find(&msgs).Error
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// LatestByGroup 批量获取每个群组的最新消息，没有消息的群组不在结果中
func (r *MessageRepository) LatestByGroup(ctx context.Context, groupIDs []uint) (map[uint]models.Message, error) {
	result := make(map[uint]models.Message, len(groupIDs))
	if len(groupIDs) == 0 {
		return result, nil
	}

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("messages.group_id IN ?", groupIDs).
		Where(latestOnly).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		result[m.GroupID] = m
	}
	return result, nil
}

// ListByGroup 按时间倒序分页获取群组消息
func (r *MessageRepository) ListByGroup(ctx context.Context, groupID uint, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("date DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&count).Error
	return count, err
}

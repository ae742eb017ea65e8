package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/StaffPortal/internal/messaging"
	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

// EventPublisher 接收提交成功后的领域事件，失败只记录日志
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// 事件类型
const (
	EventGroupCreated  = "group.created"
	EventMessagePosted = "message.posted"
	EventMembersAdded  = "group.members_added"
)

// Event 发布到消息总线的审计事件
type Event struct {
	Type      string    `json:"type"`
	GroupID   uint      `json:"group_id"`
	MessageID uint      `json:"message_id,omitempty"`
	UserID    uint      `json:"user_id"`
	MemberIDs []uint    `json:"member_ids,omitempty"`
	At        time.Time `json:"at"`
}

type MessageServiceOptions struct {
	// PreviewLength 为 0 时使用 messaging.DefaultPreviewLength
	PreviewLength int
	// SenderAutoRead 为 true 时发送者自动进入消息的已读集合
	SenderAutoRead bool
	Events         EventPublisher
	Logger         *logger.Logger
}

type MessageService struct {
	GroupRepo   *repositories.GroupRepository
	MessageRepo *repositories.MessageRepository
	UserRepo    *repositories.UserRepository

	events         EventPublisher
	logger         *logger.Logger
	previewLength  int
	senderAutoRead bool
	now            func() time.Time
}

func NewMessageService(groupRepo *repositories.GroupRepository, messageRepo *repositories.MessageRepository,
	userRepo *repositories.UserRepository, opts MessageServiceOptions,
) *MessageService {
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = messaging.DefaultPreviewLength
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &MessageService{
		GroupRepo:      groupRepo,
		MessageRepo:    messageRepo,
		UserRepo:       userRepo,
		events:         opts.Events,
		logger:         opts.Logger,
		previewLength:  opts.PreviewLength,
		senderAutoRead: opts.SenderAutoRead,
		now:            time.Now,
	}
}

// CreateGroupRequest 新建会话表单，RecipientIDs 保持表单原始字符串
type CreateGroupRequest struct {
	Name         string   `json:"name"`
	RecipientIDs []string `json:"recipient_ids"`
	Body         string   `json:"message"`
}

// GroupSummary 会话列表中的一行
type GroupSummary struct {
	ID            uint            `json:"id"`
	Name          string          `json:"name"`
	CreatedAt     time.Time       `json:"created_at"`
	MemberIDs     []uint          `json:"member_ids"`
	Names         string          `json:"names"`
	HasUnread     bool            `json:"has_unread"`
	LatestMessage *models.Message `json:"latest_message,omitempty"`
	Preview       string          `json:"preview"`
}

type MessageResponse struct {
	ID       uint      `json:"id"`
	GroupID  uint      `json:"group_id"`
	SenderID uint      `json:"sender_id"`
	Body     string    `json:"body"`
	Preview  string    `json:"preview"`
	Date     time.Time `json:"date"`
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// storageFailure 记录底层错误，只向调用方返回通用提示
func (s *MessageService) storageFailure(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "messaging storage failure", zap.String("op", op), zap.Error(err))
	return validation(MsgGenericFailure)
}

func (s *MessageService) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	key := strconv.FormatUint(uint64(ev.GroupID), 10)
	if err := s.events.Publish(ctx, key, ev); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (s *MessageService) readersFor(senderID uint) []uint {
	if s.senderAutoRead {
		return []uint{senderID}
	}
	return nil
}

// parseRecipientIDs 保留能解析为正整数的 ID，顺序不变并去重
func parseRecipientIDs(raw []string) []uint {
	ids := lo.FilterMap(raw, func(r string, _ int) (uint, bool) {
		n, err := strconv.ParseUint(strings.TrimSpace(r), 10, 64)
		return uint(n), err == nil && n > 0
	})
	return lo.Uniq(ids)
}

// resolveUsers 丢弃不存在的用户 ID，保持输入顺序
func (s *MessageService) resolveUsers(ctx context.Context, ids []uint) ([]uint, error) {
	users, err := s.UserRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, s.storageFailure(ctx, "resolve users", err)
	}
	return lo.Filter(ids, func(id uint, _ int) bool {
		_, ok := users[id]
		return ok
	}), nil
}

func validateGroupName(name string) error {
	if name == "" {
		return validation(MsgAllFieldsRequired)
	}
	if utf8.RuneCountInString(name) > models.MaxGroupNameLength {
		return validation(MsgGroupNameTooLong)
	}
	return nil
}

// CreateGroup 创建群组，成员为创建者加上能解析到的 memberIDs
func (s *MessageService) CreateGroup(ctx context.Context, creatorID uint, name string, memberIDs []uint) (*models.MessageGroup, error) {
	name = strings.TrimSpace(name)
	if err := validateGroupName(name); err != nil {
		return nil, err
	}
	resolved, err := s.resolveUsers(ctx, lo.Uniq(memberIDs))
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, validation(MsgUserNotFound)
	}

	group := &models.MessageGroup{Name: name, CreatedAt: s.now().UTC()}
	members := append([]uint{creatorID}, resolved...)
	if err := s.GroupRepo.Create(ctx, group, members); err != nil {
		return nil, s.storageFailure(ctx, "create group", err)
	}

	s.publish(ctx, Event{Type: EventGroupCreated, GroupID: group.ID, UserID: creatorID, MemberIDs: lo.Uniq(members), At: group.CreatedAt})
	return group, nil
}

// CreateGroupWithMessage 创建群组并发送首条消息
// 群组、成员和消息在同一事务内写入，失败时不会留下任何记录
func (s *MessageService) CreateGroupWithMessage(ctx context.Context, creatorID uint, req *CreateGroupRequest) (*models.MessageGroup, *models.Message, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(req.RecipientIDs) == 0 || strings.TrimSpace(req.Body) == "" {
		return nil, nil, validation(MsgAllFieldsRequired)
	}

	ids := parseRecipientIDs(req.RecipientIDs)
	if len(ids) == 0 {
		return nil, nil, validation(MsgInvalidRecipient)
	}
	resolved, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(resolved) == 0 {
		return nil, nil, validation(MsgUserNotFound)
	}
	if err := validateGroupName(name); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	group := &models.MessageGroup{Name: name, CreatedAt: now}
	msg := &models.Message{SenderID: creatorID, Body: req.Body, Date: now}
	members := append([]uint{creatorID}, resolved...)

	if err := s.GroupRepo.CreateWithMessage(ctx, group, members, msg, s.readersFor(creatorID)); err != nil {
		return nil, nil, s.storageFailure(ctx, "create group with message", err)
	}

	s.logger.InfoContext(ctx, "group created",
		zap.Uint("group_id", group.ID),
		zap.Uint("creator_id", creatorID),
		zap.Int("members", len(lo.Uniq(members))),
	)
	s.publish(ctx, Event{Type: EventGroupCreated, GroupID: group.ID, MessageID: msg.ID, UserID: creatorID, MemberIDs: lo.Uniq(members), At: now})
	return group, msg, nil
}

// AddMembers 由现有成员邀请新成员，不存在的用户被忽略，重复添加不报错
func (s *MessageService) AddMembers(ctx context.Context, actorID, groupID uint, userIDs []uint) (int64, error) {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return 0, err
	}
	resolved, err := s.resolveUsers(ctx, lo.Uniq(userIDs))
	if err != nil {
		return 0, err
	}
	if len(resolved) == 0 {
		return 0, validation(MsgUserNotFound)
	}

	added, err := s.GroupRepo.AddMembers(ctx, groupID, resolved)
	if err != nil {
		if isNotFound(err) {
			return 0, ErrGroupNotFound
		}
		return 0, s.storageFailure(ctx, "add members", err)
	}
	if added > 0 {
		s.publish(ctx, Event{Type: EventMembersAdded, GroupID: groupID, UserID: actorID, MemberIDs: resolved, At: s.now().UTC()})
	}
	return added, nil
}

// requireMember 群组不存在返回 ErrGroupNotFound，非成员返回 ErrNotMember
func (s *MessageService) requireMember(ctx context.Context, groupID, userID uint) error {
	if _, err := s.GroupRepo.GetByID(ctx, groupID); err != nil {
		if isNotFound(err) {
			return ErrGroupNotFound
		}
		return s.storageFailure(ctx, "get group", err)
	}
	ok, err := s.GroupRepo.IsMember(ctx, groupID, userID)
	if err != nil {
		return s.storageFailure(ctx, "check membership", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// PostMessage 追加一条消息，at 必须由调用方提供
func (s *MessageService) PostMessage(ctx context.Context, groupID, senderID uint, body string, at time.Time) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validation(MsgEmptyBody)
	}
	if at.IsZero() {
		return nil, validation(MsgMissingTimestamp)
	}
	if err := s.requireMember(ctx, groupID, senderID); err != nil {
		return nil, err
	}

	msg := &models.Message{GroupID: groupID, SenderID: senderID, Body: body, Date: at.UTC()}
	if err := s.MessageRepo.Create(ctx, msg, s.readersFor(senderID)...); err != nil {
		return nil, s.storageFailure(ctx, "post message", err)
	}

	s.publish(ctx, Event{Type: EventMessagePosted, GroupID: groupID, MessageID: msg.ID, UserID: senderID, At: msg.Date})
	return msg, nil
}

// Preview 按配置长度截断消息正文
func (s *MessageService) Preview(msg *models.Message) string {
	return messaging.Preview(msg.Body, s.previewLength)
}

// MarkRead 幂等
func (s *MessageService) MarkRead(ctx context.Context, messageID, userID uint) error {
	if _, err := s.MessageRepo.GetByID(ctx, messageID); err != nil {
		if isNotFound(err) {
			return ErrMessageNotFound
		}
		return s.storageFailure(ctx, "get message", err)
	}
	if err := s.MessageRepo.MarkRead(ctx, messageID, userID, s.now().UTC()); err != nil {
		return s.storageFailure(ctx, "mark read", err)
	}
	return nil
}

// MarkGroupRead 打开会话时把其中全部消息标记为已读
func (s *MessageService) MarkGroupRead(ctx context.Context, groupID, userID uint) (int64, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return 0, err
	}
	n, err := s.MessageRepo.MarkGroupRead(ctx, groupID, userID, s.now().UTC())
	if err != nil {
		return 0, s.storageFailure(ctx, "mark group read", err)
	}
	return n, nil
}

func (s *MessageService) UnreadCountFor(ctx context.Context, userID uint) (int64, error) {
	n, err := s.MessageRepo.UnreadCountFor(ctx, userID)
	if err != nil {
		return 0, s.storageFailure(ctx, "unread count", err)
	}
	return n, nil
}

func (s *MessageService) GroupHasUnread(ctx context.Context, groupID, userID uint) (bool, error) {
	ok, err := s.MessageRepo.GroupHasUnread(ctx, groupID, userID)
	if err != nil {
		return false, s.storageFailure(ctx, "group has unread", err)
	}
	return ok, nil
}

// LatestMessage 返回日期最大的消息，群组没有消息时返回 nil
func (s *MessageService) LatestMessage(ctx context.Context, groupID uint) (*models.Message, error) {
	msg, err := s.MessageRepo.Latest(ctx, groupID)
	if err != nil {
		return nil, s.storageFailure(ctx, "latest message", err)
	}
	return msg, nil
}

// CombinedNames 按加入顺序拼接成员姓名，只有成员可以查看
func (s *MessageService) CombinedNames(ctx context.Context, groupID, userID uint, full bool) (string, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return "", err
	}
	members, err := s.GroupRepo.Members(ctx, groupID)
	if err != nil {
		return "", s.storageFailure(ctx, "list members", err)
	}
	return messaging.CombinedNames(fullNames(members), full), nil
}

func fullNames(users []models.User) []string {
	return lo.Map(users, func(u models.User, _ int) string { return u.FullName() })
}

// ListMessages 成员查看会话历史，按时间倒序分页
func (s *MessageService) ListMessages(ctx context.Context, groupID, userID uint, limit, offset int) ([]MessageResponse, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.MessageRepo.ListByGroup(ctx, groupID, limit, offset)
	if err != nil {
		return nil, s.storageFailure(ctx, "list messages", err)
	}
	return lo.Map(msgs, func(m models.Message, _ int) MessageResponse {
		return MessageResponse{
			ID:       m.ID,
			GroupID:  m.GroupID,
			SenderID: m.SenderID,
			Body:     m.Body,
			Preview:  s.Preview(&m),
			Date:     m.Date,
		}
	}), nil
}

// ListGroupsForUser 按最新消息时间倒序返回用户的会话
// 没有消息的群组排在最后，彼此之间按创建时间倒序
func (s *MessageService) ListGroupsForUser(ctx context.Context, userID uint) ([]GroupSummary, error) {
	groups, err := s.GroupRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, s.storageFailure(ctx, "list groups", err)
	}
	if len(groups) == 0 {
		return []GroupSummary{}, nil
	}
	ids := lo.Map(groups, func(g models.MessageGroup, _ int) uint { return g.ID })

	latest, err := s.MessageRepo.LatestByGroup(ctx, ids)
	if err != nil {
		return nil, s.storageFailure(ctx, "latest messages", err)
	}
	unread, err := s.MessageRepo.GroupsWithUnread(ctx, userID, ids)
	if err != nil {
		return nil, s.storageFailure(ctx, "unread groups", err)
	}
	members, err := s.GroupRepo.MembersOf(ctx, ids)
	if err != nil {
		return nil, s.storageFailure(ctx, "group members", err)
	}

	summaries := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		summary := GroupSummary{
			ID:        g.ID,
			Name:      g.Name,
			CreatedAt: g.CreatedAt,
			MemberIDs: lo.Map(members[g.ID], func(u models.User, _ int) uint { return u.ID }),
			Names:     messaging.CombinedNames(fullNames(members[g.ID]), false),
			HasUnread: unread[g.ID],
		}
		if m, ok := latest[g.ID]; ok {
			summary.LatestMessage = &m
			summary.Preview = s.Preview(&m)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return groupsBefore(&summaries[i], &summaries[j])
	})
	return summaries, nil
}

func groupsBefore(a, b *GroupSummary) bool {
	switch {
	case a.LatestMessage != nil && b.LatestMessage != nil:
		if !a.LatestMessage.Date.Equal(b.LatestMessage.Date) {
			return a.LatestMessage.Date.After(b.LatestMessage.Date)
		}
		return a.LatestMessage.ID > b.LatestMessage.ID
	case a.LatestMessage != nil:
		return true
	case b.LatestMessage != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

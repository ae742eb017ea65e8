package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/services"
)

// MessageHandler 会话与消息
type MessageHandler struct {
	messageService *services.MessageService
	now            func() time.Time
}

func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService, now: time.Now}
}

type postMessageRequest struct {
	Body string `json:"body"`
}

type addMembersRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
}

// ListGroups 当前用户的会话列表
func (h *MessageHandler) ListGroups(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	groups, err := h.messageService.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", groups)
}

// CreateGroup 新建会话并发送第一条消息
func (h *MessageHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	group, msg, err := h.messageService.CreateGroupWithMessage(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", gin.H{"group": group, "message": msg})
}

// ListMessages 会话历史，limit/offset 分页
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	msgs, err := h.messageService.ListMessages(c.Request.Context(), groupID, userID,
		queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", msgs)
}

// PostMessage 在会话中发送消息，时间取服务器当前时间
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.messageService.PostMessage(c.Request.Context(), groupID, userID, req.Body, h.now())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", msg)
}

// AddMembers 成员邀请其他员工加入会话
func (h *MessageHandler) AddMembers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	added, err := h.messageService.AddMembers(c.Request.Context(), userID, groupID, req.UserIDs)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", gin.H{"added": added})
}

// MarkGroupRead 打开会话，全部标为已读
func (h *MessageHandler) MarkGroupRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	n, err := h.messageService.MarkGroupRead(c.Request.Context(), groupID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", gin.H{"marked": n})
}

// MarkRead 单条消息标为已读
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.messageService.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		fail(c, err)
		return
	}
	success(c, "success", nil)
}

// UnreadCount 当前用户的未读消息总数
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.messageService.UnreadCountFor(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", gin.H{"unread_count": n})
}

// Names 会话成员姓名，?full=true 返回完整列表
func (h *MessageHandler) Names(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	names, err := h.messageService.CombinedNames(c.Request.Context(), groupID, userID, queryBool(c, "full", false))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", gin.H{"names": names})
}

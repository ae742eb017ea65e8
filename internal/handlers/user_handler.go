package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/services"
)

// UserHandler 员工资料与通讯录
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile 当前用户资料
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", user)
}

// UpdateProfile 修改当前用户资料
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var form services.ProfileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, &form)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, services.MsgProfileUpdated, user)
}

// Directory 员工通讯录
func (h *UserHandler) Directory(c *gin.Context) {
	users, err := h.userService.Directory(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", users)
}

// Recipients 新建会话可选的收件人
func (h *UserHandler) Recipients(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	users, err := h.userService.Recipients(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", users)
}

// Status 某个员工的在线状态
func (h *UserHandler) Status(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	status, err := h.userService.CurrentOnlineStatus(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", status)
}

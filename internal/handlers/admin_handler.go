package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/services"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Logs 管理员查看统计数据和通讯录
func (h *AdminHandler) Logs(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	logs, err := h.adminService.Logs(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", logs)
}

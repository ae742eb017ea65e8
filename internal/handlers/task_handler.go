package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/services"
)

// TaskHandler 员工任务记录
type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// MyTasks 当前用户的任务
func (h *TaskHandler) MyTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.list(c, actor, actor.UserID)
}

// UserTasks 查看某个员工的任务，本人或管理员
func (h *TaskHandler) UserTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	h.list(c, actor, userID)
}

func (h *TaskHandler) list(c *gin.Context, actor services.Actor, userID uint) {
	tasks, err := h.taskService.ListTasks(c.Request.Context(), actor, userID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", tasks)
}

// CreateMyTask 为自己添加任务
func (h *TaskHandler) CreateMyTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.create(c, actor, actor.UserID)
}

// CreateUserTask 为某个员工添加任务，本人或管理员
func (h *TaskHandler) CreateUserTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	h.create(c, actor, userID)
}

func (h *TaskHandler) create(c *gin.Context, actor services.Actor, userID uint) {
	var req services.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), actor, userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "message": "success", "data": task})
}

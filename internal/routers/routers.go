package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/config"
	"github.com/Gopher0727/StaffPortal/internal/handlers"
	"github.com/Gopher0727/StaffPortal/internal/middlewares"
	"github.com/Gopher0727/StaffPortal/internal/utils"
	"github.com/Gopher0727/StaffPortal/middleware/jwt"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
)

// Handlers 需要注册路由的处理器
type Handlers struct {
	Auth    *handlers.AuthHandler
	User    *handlers.UserHandler
	Message *handlers.MessageHandler
	Task    *handlers.TaskHandler
	Admin   *handlers.AdminHandler
}

// SetupRoutes 设置所有路由，pool 为 nil 时请求在 gin 的协程中同步处理
func SetupRoutes(r *gin.Engine, cfg *config.Config, log *logger.Logger, tokens *jwt.TokenManager,
	pool *utils.WorkerPool, h *Handlers,
) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{logger.RequestIDHeader}
	r.Use(cors.New(corsConfig))
	r.Use(logger.GinMiddleware(log))

	if cfg.Server.MaxConcurrent > 0 {
		r.Use(middlewares.MaxConcurrencyMiddleware(cfg.Server.MaxConcurrent))
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"Status": "OK",
		})
	})

	// 请求放入 Worker Pool 排队执行
	r.Use(middlewares.AsyncMiddleware(pool))

	auth := middlewares.AuthMiddleware(tokens)
	api := r.Group("/api/v1")

	RegisterUserRoutes(api, auth, h.Auth, h.User)
	RegisterMessageRoutes(api, auth, h.Message)
	RegisterTaskRoutes(api, auth, h.Task)
	RegisterAdminRoutes(api, auth, h.Admin)
}

func RegisterUserRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, authHandler *handlers.AuthHandler, userHandler *handlers.UserHandler) {
	userGroup := api.Group("/users")
	{
		userGroup.POST("/signup", authHandler.Signup) // 注册
		userGroup.POST("/login", authHandler.Login)   // 登录
	}
	userGroup.Use(auth)
	{
		userGroup.POST("/logout", authHandler.Logout)
		userGroup.GET("/me", userHandler.GetProfile)
		userGroup.PUT("/me", userHandler.UpdateProfile)

		userGroup.GET("", userHandler.Directory)              // 通讯录：在线优先
		userGroup.GET("/recipients", userHandler.Recipients)  // 除自己外的所有员工
		userGroup.GET("/:user_id/status", userHandler.Status) // 在线状态
	}
}

func RegisterMessageRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, messageHandler *handlers.MessageHandler) {
	msgGroup := api.Group("/messages")
	msgGroup.Use(auth)
	{
		msgGroup.GET("/groups", messageHandler.ListGroups)
		msgGroup.POST("/groups", messageHandler.CreateGroup) // 新建会话并发送第一条消息

		msgGroup.GET("/groups/:group_id/messages", messageHandler.ListMessages)
		msgGroup.POST("/groups/:group_id/messages", messageHandler.PostMessage)
		msgGroup.POST("/groups/:group_id/members", messageHandler.AddMembers)
		msgGroup.POST("/groups/:group_id/read", messageHandler.MarkGroupRead)
		msgGroup.GET("/groups/:group_id/names", messageHandler.Names)

		msgGroup.POST("/:message_id/read", messageHandler.MarkRead)
		msgGroup.GET("/unread", messageHandler.UnreadCount)
	}
}

func RegisterTaskRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, taskHandler *handlers.TaskHandler) {
	taskGroup := api.Group("/tasks")
	taskGroup.Use(auth)
	{
		taskGroup.GET("/mine", taskHandler.MyTasks)
		taskGroup.POST("", taskHandler.CreateMyTask)
		taskGroup.GET("/:user_id", taskHandler.UserTasks) // 本人或管理员
		taskGroup.POST("/:user_id", taskHandler.CreateUserTask)
	}
}

func RegisterAdminRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, adminHandler *handlers.AdminHandler) {
	adminGroup := api.Group("/admin")
	adminGroup.Use(auth, middlewares.RequireAdmin())
	{
		adminGroup.GET("/logs", adminHandler.Logs)
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/middlewares"
	"github.com/Gopher0727/StaffPortal/internal/services"
)

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

// statusFor 把业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	if _, ok := services.IsValidation(err); ok {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotMember), errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// fail 记录错误（由访问日志输出）并返回 {"error": msg}，内部错误不暴露细节
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = services.MsgGenericFailure
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// currentUser 读取 AuthMiddleware 写入的用户 ID
func currentUser(c *gin.Context) (uint, bool) {
	v, ok := c.Get(middlewares.CtxUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	id, ok := v.(uint)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return id, true
}

func currentActor(c *gin.Context) (services.Actor, bool) {
	id, ok := currentUser(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{UserID: id, IsAdmin: c.GetBool(middlewares.CtxIsAdmin)}, true
}

// pathID 解析路径中的正整数 ID
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

// queryBool 接受 strconv.ParseBool 认识的写法（1/t/true/TRUE 等），否则返回 def
func queryBool(c *gin.Context, name string, def bool) bool {
	if v, err := strconv.ParseBool(c.Query(name)); err == nil {
		return v
	}
	return def
}

package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StaffPortal/internal/utils"
)

// AsyncMiddleware 把请求的处理链提交到 Worker Pool 中执行，限制同时处理的请求数
// 队列满时 Submit 阻塞，请求排队而不是被拒绝；pool 为 nil 时同步执行
func AsyncMiddleware(pool *utils.WorkerPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pool == nil {
			c.Next()
			return
		}

		// 主 Goroutine 阻塞等待 done，同一时间只有 worker 在操作 c
		done := make(chan struct{})
		pool.Submit(func() {
			defer close(done)
			// panic 发生在 worker 上，gin.Recovery 捕获不到，这里转成 500
			defer func() {
				if r := recover(); r != nil {
					_ = c.Error(fmt.Errorf("handler panic: %v", r))
					c.AbortWithStatus(http.StatusInternalServerError)
				}
			}()
			c.Next()
		})
		<-done
	}
}

// MaxConcurrencyMiddleware 超过 maxConcurrent 个并发请求时直接返回 503
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service Unavailable - Too many concurrent requests",
			})
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/StaffPortal/config"
	"github.com/Gopher0727/StaffPortal/internal/handlers"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	"github.com/Gopher0727/StaffPortal/internal/routers"
	"github.com/Gopher0727/StaffPortal/internal/services"
	"github.com/Gopher0727/StaffPortal/internal/storage"
	"github.com/Gopher0727/StaffPortal/internal/utils"
	"github.com/Gopher0727/StaffPortal/middleware/jwt"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
	"github.com/Gopher0727/StaffPortal/pkg/mq"
	"github.com/Gopher0727/StaffPortal/utils/ratelimit"
)

func main() {
	configPath := flag.String("config", "./config.toml", "配置文件路径")
	flag.Parse()

	// .env 中的 PORTAL_* 变量可以覆盖配置文件，文件不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Close()

	// 初始化 PostgreSQL
	dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
	postgres, err := storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns, appLogger.GormLogLevel())
	if err != nil {
		appLogger.Fatal("postgres 初始化失败", zap.Error(err))
	}
	if err := storage.Migrate(postgres); err != nil {
		appLogger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// Redis 可选：用户缓存、在线集合、登录限流
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = storage.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
		if err != nil {
			appLogger.Fatal("redis 初始化失败", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 初始化仓储层
	userRepo := repositories.NewUserRepository(postgres, redisClient)
	groupRepo := repositories.NewGroupRepository(postgres)
	messageRepo := repositories.NewMessageRepository(postgres)
	taskRepo := repositories.NewTaskRepository(postgres)

	// Kafka 不可用时不发布事件，业务照常
	var events services.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err := mq.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, appLogger.Logger)
		if err != nil {
			appLogger.Warn("Kafka 生产者初始化失败，事件发布已关闭", zap.Error(err))
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	var limiter services.LoginLimiter
	if redisClient != nil {
		limiter = ratelimit.NewWindowLimiter(redisClient, appLogger.Logger, ratelimit.Options{
			Prefix:   "login",
			Limit:    cfg.LoginLimit.Attempts,
			Window:   time.Duration(cfg.LoginLimit.WindowSeconds) * time.Second,
			Fallback: true,
		})
	}

	// 初始化服务层
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	presence := services.NewPresenceTracker(userRepo, redisClient)
	authService := services.NewAuthService(userRepo, tokens, presence, limiter, appLogger)
	userService := services.NewUserService(userRepo, presence, appLogger)
	messageService := services.NewMessageService(groupRepo, messageRepo, userRepo, services.MessageServiceOptions{
		PreviewLength:  cfg.Messaging.PreviewLength,
		SenderAutoRead: cfg.Messaging.SenderAutoRead,
		Events:         events,
		Logger:         appLogger,
	})
	taskService := services.NewTaskService(taskRepo, userRepo, appLogger)
	adminService := services.NewAdminService(userRepo, groupRepo, messageRepo)

	// 协程池限制同时处理的请求数
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLogger.Logger)
	pool.Start()
	defer pool.Stop()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	routers.SetupRoutes(r, cfg, appLogger, tokens, pool, &routers.Handlers{
		Auth:    handlers.NewAuthHandler(authService),
		User:    handlers.NewUserHandler(userService),
		Message: handlers.NewMessageHandler(messageService),
		Task:    handlers.NewTaskHandler(taskService),
		Admin:   handlers.NewAdminHandler(adminService),
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		appLogger.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	<-done
	appLogger.Info("正在关闭服务器")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("关闭服务器失败", zap.Error(err))
	}
}

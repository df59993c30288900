package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-vitals-hub/internal/alert"
	"wisefido-vitals-hub/internal/cache"
	"wisefido-vitals-hub/internal/classifier"
	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/consumer"
	"wisefido-vitals-hub/internal/dispatcher"
	"wisefido-vitals-hub/internal/evaluator"
	"wisefido-vitals-hub/internal/httpapi"
	"wisefido-vitals-hub/internal/mqtt"
	"wisefido-vitals-hub/internal/repository"
	"wisefido-vitals-hub/internal/store"
)

// HubService 遥测中枢（整合各层）
type HubService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	runner      *classifier.RunnerClient
	deviceStore *store.Store
	sweeper     *store.Sweeper
	cacheMgr    *cache.Manager
	archive     *repository.ArchiveRepository
	queue       *dispatcher.Queue
	taskPool    *dispatcher.Dispatcher
	alerts      *alert.Dispatcher
	evaluator   *evaluator.Evaluator
	consumer    *consumer.Consumer
	httpServer  *http.Server
}

// NewHubService 创建遥测中枢服务
func NewHubService(cfg *config.Config, logger *zap.Logger) (*HubService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. 模型运行器（模型缺失只是禁用对应检测器，不阻止启动）
	runner := classifier.NewRunnerClient(cfg, logger)

	// 5. 存储与缓存层
	deviceStore := store.NewStore(cfg, logger)
	sweeper := store.NewSweeper(cfg, deviceStore, logger)
	cacheMgr := cache.NewManager(cfg, redisClient, logger)
	archive := repository.NewArchiveRepository(db, logger)

	// 6. 报警分发
	alerts := alert.NewDispatcher(cfg, mqttClient, archive, deviceStore, cacheMgr, logger)

	// 7. 任务队列与处理流水线
	queue := dispatcher.NewQueue(cfg.Queue.Size, logger)
	eval := evaluator.NewEvaluator(cfg, deviceStore, archive, cacheMgr, alerts, runner, logger)
	taskPool := dispatcher.NewDispatcher(queue, eval, cfg.Queue.WorkerCount, logger)

	// 8. 入站消费与查询接口
	cons := consumer.NewConsumer(cfg, mqttClient, queue, deviceStore, archive, logger)

	handler := httpapi.NewHandler(cfg, deviceStore, queue, runner, archive, logger)
	router := httpapi.NewRouter(logger)
	router.RegisterRoutes(handler)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: router,
	}

	return &HubService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		logger:      logger,
		runner:      runner,
		deviceStore: deviceStore,
		sweeper:     sweeper,
		cacheMgr:    cacheMgr,
		archive:     archive,
		queue:       queue,
		taskPool:    taskPool,
		alerts:      alerts,
		evaluator:   eval,
		consumer:    cons,
		httpServer:  httpServer,
	}, nil
}

// Start 启动服务，阻塞到 ctx 取消或 HTTP 服务出错
func (s *HubService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals hub service")

	// 探测模型可用性（失败只禁用对应检测器）
	s.runner.Load(ctx)

	// 后台循环
	s.taskPool.Start(ctx)
	go s.sweeper.Start(ctx)

	// 入站订阅
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	// HTTP 服务
	httpErrChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down")
		return nil
	case err := <-httpErrChan:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Stop 按与启动相反的顺序关闭各组件
func (s *HubService) Stop() error {
	s.logger.Info("Stopping vitals hub service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down http server", zap.Error(err))
	}

	// 先停入站，再等 worker 把在途任务跑完
	s.consumer.Stop()
	s.taskPool.Stop()

	s.runner.Close()
	s.mqttClient.Disconnect()

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}

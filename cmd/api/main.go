package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor/internal/api"
	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/compressor"
	"image-compressor/internal/core/form"
	imgsvc "image-compressor/internal/core/image"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/core/session"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（.env 可選）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("compressor_driver", cfg.Compressor.Driver),
		zap.String("blobstore_driver", cfg.BlobStore.Driver),
		zap.Int("queue_workers", cfg.Queue.Workers),
	)

	// 初始化參照儲存
	store, err := blob.NewStore(cfg)
	if err != nil {
		common.LogFatal("Failed to initialize blob store", zap.Error(err))
	}
	defer store.Close()

	// 初始化壓縮隊列
	queueManager := queue.NewManager(cfg.Queue)
	defer queueManager.Close()

	comp, err := compressor.New(cfg, queueManager)
	if err != nil {
		common.LogFatal("Failed to initialize compressor", zap.Error(err))
	}

	// 會話管理器需在隊列與儲存之前關閉
	sessions := session.NewManager(
		cfg.Session,
		form.OptionsFromConfig(cfg),
		store,
		comp,
		imgsvc.NewService(cfg.Image.MaxSizeBytes, cfg.Image.MaxPixels),
	)
	defer sessions.Close()

	// 設置路由
	router, err := api.SetupRouter(cfg, api.Dependencies{
		Store:    store,
		Queue:    queueManager,
		Sessions: sessions,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		common.LogError("Failed to start server", zap.Error(err))
		return
	}

	common.LogInfo("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
		return
	}

	common.LogInfo("Server exited")
}

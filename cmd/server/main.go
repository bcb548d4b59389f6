package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storyboard-ai/config"
	"storyboard-ai/internal/appdirs"
	"storyboard-ai/internal/deps"
	"storyboard-ai/internal/server"
	"storyboard-ai/internal/storage"
	"storyboard-ai/log"

	"go.uber.org/zap"
)

func main() {
	log.InitLogger()
	defer log.GetLogger().Sync()

	var err error
	if !config.LoadConfig() {
		return
	}

	if err = config.CheckConfig(); err != nil {
		log.GetLogger().Error("加载配置失败 Load config failed", zap.Error(err))
		return
	}

	if err = prepareDirs(); err != nil {
		log.GetLogger().Error("创建运行目录失败 Create runtime dirs failed", zap.Error(err))
		return
	}

	if err = storage.InitDB(); err != nil {
		log.GetLogger().Warn("运行历史不可用 Run history disabled", zap.Error(err))
	} else if count, err := storage.MarkStaleRuns(); err != nil {
		log.GetLogger().Warn("Failed to mark stale runs", zap.Error(err))
	} else if count > 0 {
		log.GetLogger().Info("Marked stale runs as failed", zap.Int64("count", count))
	}

	if err = deps.CheckDependency(); err != nil {
		log.GetLogger().Error("依赖环境准备失败 Dependency check failed", zap.Error(err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = server.StartBackend(ctx); err != nil {
		log.GetLogger().Error("后端服务启动失败 Backend failed", zap.Error(err))
		os.Exit(1)
	}
}

func prepareDirs() error {
	dirs, err := appdirs.Resolve()
	if err != nil {
		return err
	}
	return appdirs.Ensure(dirs)
}

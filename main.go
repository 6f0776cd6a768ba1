package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/config"
	"github.com/life2you_mini/riskcore/internal/logger"
	"github.com/life2you_mini/riskcore/internal/service"
	"github.com/life2you_mini/riskcore/internal/storage"
)

var (
	configFile = flag.String("config", "config/config.yaml", "配置文件路径")
	genConfig  = flag.Bool("genconfig", false, "生成默认配置文件后退出")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	if *genConfig {
		if err := config.SaveConfigToFile(config.GetDefaultConfig(), *configFile); err != nil {
			fmt.Printf("生成默认配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("默认配置已写入: %s\n", *configFile)
		return
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.System.LogDir, cfg.System.LogLevel)
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("加载配置成功", zap.String("配置文件", *configFile))

	// 创建上下文，用于处理信号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// 初始化Redis存储
	redisClient, err := storage.NewRedisClient(storage.ClientOptions{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("初始化Redis客户端失败", zap.Error(err))
	}

	store := storage.NewRedisStorage(redisClient, cfg.Redis.KeyPrefix, log.Logger)
	if err := store.Initialize(ctx); err != nil {
		log.Fatal("初始化存储失败", zap.Error(err))
	}

	// 创建服务
	svc, err := service.NewRiskService(ctx, cfg, log.Logger, store)
	if err != nil {
		log.Fatal("创建风险管理服务失败", zap.Error(err))
	}

	// 启动服务
	if err := svc.Start(); err != nil {
		log.Fatal("启动风险管理服务失败", zap.Error(err))
	}
	log.Info("服务已启动")

	// 等待终止信号
	sig := <-signalChan
	log.Info("接收到信号，准备关闭服务", zap.String("signal", sig.String()))

	// 停止服务
	if err := svc.Stop(); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
	}

	// 关闭存储连接
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := store.Close(shutdownCtx); err != nil {
		log.Error("关闭存储失败", zap.Error(err))
	}

	log.Info("服务已优雅关闭")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mintgate/internal/api"
	"mintgate/internal/config"
	"mintgate/internal/events"
	"mintgate/internal/journal"
	"mintgate/internal/session"
	"mintgate/internal/whitelist"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 8080, "API 服务端口")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	// 设置日志级别
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("加载配置失败: %v", err)
	}

	// 构建白名单Merkle树
	addresses, err := whitelist.LoadAddresses(cfg.Allowlist, logger)
	if err != nil {
		logger.Fatalf("加载白名单失败: %v", err)
	}
	tree, err := whitelist.NewTree(addresses, logger)
	if err != nil {
		logger.Fatalf("构建白名单树失败: %v", err)
	}

	// 打开铸造流水存储
	mintJournal, err := journal.NewJournal(cfg.Journal.Path, logger)
	if err != nil {
		logger.Fatalf("打开铸造流水失败: %v", err)
	}
	defer mintJournal.Close()

	// 创建事件接收器
	sink, err := events.NewSink(cfg.Events, logger)
	if err != nil {
		logger.Fatalf("创建事件接收器失败: %v", err)
	}
	defer sink.Close()

	// 创建会话控制器
	controller, err := session.NewController(cfg, tree, mintJournal, sink, logger, cfg.Logging)
	if err != nil {
		logger.Fatalf("创建会话控制器失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller.Start(ctx)

	// 创建API服务器
	server := api.NewServer(controller, mintJournal, cfg, logger, *port)

	// 启动服务器
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("启动服务器失败: %v", err)
		}
	}()

	logger.Infof("API服务器已启动，监听端口: %d", *port)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("正在关闭服务器...")
	if err := server.Stop(); err != nil {
		logger.Errorf("关闭服务器失败: %v", err)
	}
	controller.Close()

	logger.Info("服务器已关闭")
}

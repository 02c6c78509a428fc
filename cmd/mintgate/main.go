package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mintgate/internal/config"
	"mintgate/internal/errors"
	"mintgate/internal/events"
	"mintgate/internal/journal"
	"mintgate/internal/session"
	"mintgate/internal/shutdown"
	"mintgate/internal/whitelist"
	"mintgate/pkg/models"
)

var (
	// 基础参数
	configFile string
	verbose    bool

	// proof子命令参数
	proofAddress string

	// mint子命令参数
	mintAmount uint64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mintgate",
		Short: "NFT铸造会话服务",
		Long:  `NFT铸造会话服务：管理钱包连接、合约状态同步、白名单验证与铸造交易生命周期`,
		RunE:  run,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	// 白名单证明查询子命令
	proofCmd := &cobra.Command{
		Use:   "proof",
		Short: "查询地址的白名单Merkle证明",
		RunE:  showProof,
	}
	proofCmd.Flags().StringVar(&proofAddress, "address", "", "待查询的钱包地址")

	// 白名单树根查询子命令
	rootHashCmd := &cobra.Command{
		Use:   "root",
		Short: "计算白名单Merkle树根",
		RunE:  showRoot,
	}

	// 公售铸造子命令
	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "发起一次公售铸造并等待确认",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMint(models.MintKindPublic)
		},
	}
	mintCmd.Flags().Uint64Var(&mintAmount, "amount", 1, "铸造数量")

	// 白名单铸造子命令
	wlMintCmd := &cobra.Command{
		Use:   "whitelist-mint",
		Short: "发起一次白名单铸造并等待确认",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMint(models.MintKindWhitelist)
		},
	}
	wlMintCmd.Flags().Uint64Var(&mintAmount, "amount", 1, "铸造数量")

	// 会话状态子命令
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "连接提供者并打印当前会话状态",
		RunE:  showStatus,
	}

	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(rootHashCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(wlMintCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	// 加载配置
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	// 构建白名单Merkle树
	tree, err := buildTree(cfg, logger)
	if err != nil {
		return err
	}
	logger.Infof("白名单树已构建: %d 个地址, 根 %s", tree.Len(), tree.Root().Hex())

	// 打开铸造流水存储
	mintJournal, err := journal.NewJournal(cfg.Journal.Path, logger)
	if err != nil {
		return fmt.Errorf("打开铸造流水失败: %w", err)
	}

	// 创建事件接收器
	sink, err := events.NewSink(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("创建事件接收器失败: %w", err)
	}

	// 创建会话控制器
	controller, err := session.NewController(cfg, tree, mintJournal, sink, logger, cfg.Logging)
	if err != nil {
		return fmt.Errorf("创建会话控制器失败: %w", err)
	}

	// 优雅停机：先停会话（含提供者连接），再刷事件，最后关流水
	gs := shutdown.NewGracefulShutdown(0, logger)
	gs.RegisterShutdownFunc("session-controller", func(ctx context.Context) error {
		controller.Close()
		return nil
	}, shutdown.OrderCloseProvider)
	gs.RegisterShutdownFunc("event-sink", func(ctx context.Context) error {
		return sink.Close()
	}, shutdown.OrderFlushEvents)
	gs.RegisterShutdownFunc("mint-journal", func(ctx context.Context) error {
		return mintJournal.Close()
	}, shutdown.OrderCloseJournal)

	controller.Start(gs.Context())

	logger.Info("会话服务已启动，等待停机信号...")
	gs.WaitForShutdown()

	return nil
}

// showProof 查询并打印白名单证明
func showProof(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	if proofAddress == "" {
		return fmt.Errorf("需要指定 --address")
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	tree, err := buildTree(cfg, logger)
	if err != nil {
		return err
	}

	if !tree.Contains(proofAddress) {
		fmt.Printf("地址 %s 不在白名单内\n", proofAddress)
		return nil
	}

	fmt.Printf("地址: %s\n", proofAddress)
	fmt.Printf("树根: %s\n", tree.Root().Hex())
	fmt.Println("证明:")
	for i, node := range tree.ProofHex(proofAddress) {
		fmt.Printf("  [%d] %s\n", i, node)
	}

	return nil
}

// showRoot 计算并打印白名单树根
func showRoot(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	tree, err := buildTree(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("地址数: %d\n", tree.Len())
	fmt.Printf("树根: %s\n", tree.Root().Hex())

	return nil
}

// buildController 构建一次性使用的会话控制器及其依赖
func buildController(logger *logrus.Logger) (*session.Controller, func(), error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("配置校验失败: %w", err)
	}

	tree, err := buildTree(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mintJournal, err := journal.NewJournal(cfg.Journal.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("打开铸造流水失败: %w", err)
	}

	sink, err := events.NewSink(cfg.Events, logger)
	if err != nil {
		mintJournal.Close()
		return nil, nil, fmt.Errorf("创建事件接收器失败: %w", err)
	}

	controller, err := session.NewController(cfg, tree, mintJournal, sink, logger, cfg.Logging)
	if err != nil {
		sink.Close()
		mintJournal.Close()
		return nil, nil, fmt.Errorf("创建会话控制器失败: %w", err)
	}

	cleanup := func() {
		controller.Close()
		sink.Close()
		mintJournal.Close()
	}
	return controller, cleanup, nil
}

// awaitConnected 等待会话初始化到达稳定状态
func awaitConnected(controller *session.Controller, timeout time.Duration) (session.View, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		view := controller.View()
		if view.LastError != nil {
			return view, fmt.Errorf("会话初始化失败: %s", view.LastError.Message)
		}
		if view.Status == session.StatusConnected && view.ContractReady {
			return view, nil
		}
		if view.Status == session.StatusUnsupportedChain {
			return view, fmt.Errorf("当前链不受支持")
		}
		time.Sleep(200 * time.Millisecond)
	}
	return controller.View(), fmt.Errorf("等待会话连接超时")
}

// runMint 连接提供者、提交铸造并阻塞等待终态
func runMint(kind models.MintKind) error {
	logger := newLogger()

	controller, cleanup, err := buildController(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller.Start(ctx)

	if _, err := awaitConnected(controller, 30*time.Second); err != nil {
		return err
	}

	var mintTx *models.MintTransaction
	var mintErr *errors.MintError
	if kind == models.MintKindWhitelist {
		mintTx, mintErr = controller.WhitelistMint(ctx, mintAmount)
	} else {
		mintTx, mintErr = controller.Mint(ctx, mintAmount)
	}
	if mintErr != nil {
		return fmt.Errorf("铸造被拒绝: %s", mintErr.Message)
	}
	fmt.Printf("交易已提交: %s\n", mintTx.Hash)

	// 等待后台确认流程到达终态
	for {
		view := controller.View()
		if view.InFlight == nil && !view.Loading {
			if view.LastError != nil {
				return fmt.Errorf("铸造失败: %s", view.LastError.Message)
			}
			fmt.Printf("铸造已确认: 数量 %d\n", mintAmount)
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// showStatus 连接提供者并打印会话状态
func showStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	controller, cleanup, err := buildController(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller.Start(ctx)

	view, waitErr := awaitConnected(controller, 30*time.Second)

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return waitErr
}

// buildTree 从配置的白名单来源构建Merkle树
func buildTree(cfg *config.Config, logger *logrus.Logger) (*whitelist.Tree, error) {
	addresses, err := whitelist.LoadAddresses(cfg.Allowlist, logger)
	if err != nil {
		return nil, fmt.Errorf("加载白名单失败: %w", err)
	}

	tree, err := whitelist.NewTree(addresses, logger)
	if err != nil {
		return nil, fmt.Errorf("构建白名单树失败: %w", err)
	}

	return tree, nil
}

func newLogger() *logrus.Logger {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

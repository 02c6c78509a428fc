package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mintgate/internal/config"
	"mintgate/internal/journal"
	"mintgate/internal/session"
	"mintgate/internal/validation"
)

// Server API服务器
// 展示层边界：只读取控制器暴露的可观察状态，只通过控制器的命令入口
// 发起操作，不直接触碰会话内部字段。
type Server struct {
	controller  *session.Controller
	mintJournal *journal.Journal
	config      *config.Config
	validator   *validation.Validator
	logger      *logrus.Logger
	logManager  *LogManager
	server      *http.Server
	port        int
}

// NewServer 创建新的API服务器
func NewServer(ctrl *session.Controller, mintJournal *journal.Journal, cfg *config.Config,
	logger *logrus.Logger, port int) *Server {

	// 创建日志管理器
	logManager := NewLogManager(1000) // 最多保存1000条日志

	// 添加日志钩子
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		controller:  ctrl,
		mintJournal: mintJournal,
		config:      cfg,
		validator:   validation.NewValidator(logger, false),
		logger:      logger,
		logManager:  logManager,
		port:        port,
	}
}

// Start 启动API服务器
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 添加中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 设置路由
	s.setupRoutes(router)

	// 创建HTTP服务器
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	// 健康检查
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 会话状态
		api.GET("/state", s.getState)
		api.POST("/connect", s.connect)
		api.POST("/dismiss-error", s.dismissError)

		// 铸造
		api.POST("/mint", s.mint)
		api.POST("/whitelist-mint", s.whitelistMint)

		// 白名单查询
		api.GET("/proof/:address", s.getProof)

		// 铸造记录
		api.GET("/journal", s.getJournal)

		// 错误统计
		api.GET("/errors", s.getErrorStats)

		// 提供者端点健康状态
		api.GET("/endpoints", s.getEndpoints)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "mintgate-api",
	})
}

// getState 获取当前会话状态
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": s.controller.View(),
	})
}

// connect 重新发起连接
func (s *Server) connect(c *gin.Context) {
	s.controller.Reconnect()
	c.JSON(http.StatusOK, gin.H{
		"message": "连接请求已提交",
	})
}

// dismissError 关闭当前错误提示
func (s *Server) dismissError(c *gin.Context) {
	s.controller.DismissError()
	c.JSON(http.StatusOK, gin.H{
		"message": "错误提示已关闭",
	})
}

// mintRequest 铸造请求
type mintRequest struct {
	Amount uint64 `json:"amount"`
}

// mint 发起公售铸造
func (s *Server) mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mintTx, mintErr := s.controller.Mint(c.Request.Context(), req.Amount)
	if mintErr != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": mintErr.Message,
			"code":  mintErr.Code,
			"kind":  mintErr.Kind.String(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "铸造交易已提交",
		"transaction": mintTx,
	})
}

// whitelistMint 发起白名单铸造
func (s *Server) whitelistMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mintTx, mintErr := s.controller.WhitelistMint(c.Request.Context(), req.Amount)
	if mintErr != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": mintErr.Message,
			"code":  mintErr.Code,
			"kind":  mintErr.Kind.String(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "白名单铸造交易已提交",
		"transaction": mintTx,
	})
}

// getProof 查询地址的白名单证明
func (s *Server) getProof(c *gin.Context) {
	address := c.Param("address")

	if result := s.validator.ValidateAddress(address); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": result.Errors[0].Message,
		})
		return
	}

	proof := s.controller.ProofFor(address)
	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"whitelisted": s.controller.Contains(address),
		"proof":       proof,
	})
}

// getJournal 获取铸造记录
func (s *Server) getJournal(c *gin.Context) {
	limit := 50 // 默认最近50条
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if s.mintJournal == nil {
		c.JSON(http.StatusOK, gin.H{
			"transactions": []gin.H{},
			"total":        0,
			"message":      "铸造记录未启用",
		})
		return
	}

	transactions, err := s.mintJournal.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := s.mintJournal.TotalMinted()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total_minted": total,
	})
}

// getErrorStats 获取错误统计
func (s *Server) getErrorStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats": s.controller.ErrorStats(),
	})
}

// getEndpoints 获取提供者端点健康统计
func (s *Server) getEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoints": s.controller.EndpointStats(),
	})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	limit := 100 // 默认最近100条
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	logs := s.logManager.GetLogs(level, limit)

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": len(logs),
		"level": level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/siddharth-shringarpure/CloutChain/observability"
	"github.com/siddharth-shringarpure/CloutChain/scoring"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Config 路由配置
type Config struct {
	Handler *Handler

	// Metrics 为 nil 时不注册指标路由
	Metrics     *observability.Metrics
	MetricsPath string

	Logger logrus.FieldLogger
}

// NewRouter 创建 gin 引擎并注册路由
func NewRouter(cfg *Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(RequestID(), AccessLog(logger), Recovery(logger))

	router.POST("/predict", cfg.Handler.Predict)
	router.GET("/health", cfg.Handler.Health)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return router
}

// RequestID 为每个请求分配 ID（沿用客户端传入的 X-Request-ID），并写入 context 供下游日志使用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(scoring.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog 记录每个请求的访问日志
func AccessLog(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Debug("request handled")
	}
}

// Recovery 把 handler 中的 panic 转为 200 {"error": ...}，与其它失败响应保持一致
func Recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"panic":      recovered,
		}).Error("panic recovered")
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"error": fmt.Sprintf("internal error: %v", recovered)})
	})
}

// Package api 是打分服务的 HTTP 层（gin）。
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/scoring"
	"github.com/siddharth-shringarpure/CloutChain/similarity"
)

// Scorer 由 scoring.Scorer 实现
type Scorer interface {
	Score(ctx context.Context, req *scoring.Request) (*similarity.Result, error)
}

// Handler 处理 /predict 和 /health
type Handler struct {
	scorer Scorer
	health core.HealthChecker
	logger logrus.FieldLogger
}

// NewHandler 创建 Handler。health 为 nil 时 /health 始终返回 ok。
func NewHandler(scorer Scorer, health core.HealthChecker, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		scorer: scorer,
		health: health,
		logger: logger,
	}
}

// Predict 对请求中的候选批次打分。
// 无论成功与否都返回 200：失败时响应体为 {"error": "..."}。
func (h *Handler) Predict(c *gin.Context) {
	var req scoring.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLogger(c).WithError(err).Warn("invalid predict request body")
		c.JSON(http.StatusOK, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	res, err := h.scorer.Score(c.Request.Context(), &req)
	if err != nil {
		entry := h.requestLogger(c).WithError(err)
		if core.IsDataError(err) {
			entry.Warn("predict rejected")
		} else {
			entry.Error("predict failed")
		}
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Health 检查推理能力是否可用
func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Health(c.Request.Context()); err != nil {
			h.requestLogger(c).WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger(c *gin.Context) logrus.FieldLogger {
	return h.logger.WithField("request_id", c.GetString(requestIDKey))
}

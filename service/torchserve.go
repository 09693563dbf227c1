package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// TorchServeClient 是 TorchServe REST 推理接口的客户端。
//
// REST API 格式：
//   - 推理端点：POST /predictions/{model_name}
//   - 请求体：JSON 或原始字节（根据模型 Handler 定义）
//   - 响应：直接返回预测结果（格式由模型 Handler 决定，由调用方解析）
//   - 健康检查：GET /ping
//
// 文本 embedding、情感分类、图片 embedding 和 OCR 客户端都建立在它之上。
type TorchServeClient struct {
	// Endpoint 服务端点
	// REST: "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	client *resty.Client
}

// NewTorchServeClient 创建一个新的 TorchServe 客户端。
func NewTorchServeClient(endpoint, modelName string, opts ...TorchServeOption) *TorchServeClient {
	c := &TorchServeClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   core.DefaultCapabilityTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		c.client = resty.New()
	}
	c.client.SetTimeout(c.Timeout)

	return c
}

// TorchServeOption TorchServe 客户端配置选项
type TorchServeOption func(*TorchServeClient)

// WithTorchServeVersion 设置模型版本
func WithTorchServeVersion(version string) TorchServeOption {
	return func(c *TorchServeClient) {
		c.ModelVersion = version
	}
}

// WithTorchServeTimeout 设置超时时间
func WithTorchServeTimeout(timeout time.Duration) TorchServeOption {
	return func(c *TorchServeClient) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithTorchServeAuth 设置认证信息
func WithTorchServeAuth(auth *AuthConfig) TorchServeOption {
	return func(c *TorchServeClient) {
		c.Auth = auth
	}
}

// WithTorchServeRestyClient 设置自定义 resty 客户端
func WithTorchServeRestyClient(client *resty.Client) TorchServeOption {
	return func(c *TorchServeClient) {
		c.client = client
	}
}

// PredictJSON 以 JSON 请求体调用推理端点，返回原始响应体
func (c *TorchServeClient) PredictJSON(ctx context.Context, body any) ([]byte, error) {
	req := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	return c.predict(req)
}

// PredictBytes 以原始字节请求体（如图片）调用推理端点，返回原始响应体
func (c *TorchServeClient) PredictBytes(ctx context.Context, data []byte) ([]byte, error) {
	req := c.newRequest(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data)
	return c.predict(req)
}

func (c *TorchServeClient) predict(req *resty.Request) ([]byte, error) {
	url := fmt.Sprintf("%s/predictions/%s", c.Endpoint, c.ModelName)
	if c.ModelVersion != "" {
		url = fmt.Sprintf("%s/%s", url, c.ModelVersion)
	}

	resp, err := req.Post(url)
	if err != nil {
		return nil, core.NewCapabilityError(core.ModuleService, fmt.Sprintf("torchserve %s request failed", c.ModelName), err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, core.NewCapabilityError(core.ModuleService, fmt.Sprintf("torchserve %s", c.ModelName),
			fmt.Errorf("status=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 256)))
	}
	return resp.Body(), nil
}

// Health 健康检查
func (c *TorchServeClient) Health(ctx context.Context) error {
	resp, err := c.newRequest(ctx).Get(fmt.Sprintf("%s/ping", c.Endpoint))
	if err != nil {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, "health check failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, "health check failed",
			fmt.Errorf("status=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 256)))
	}
	return nil
}

// Close 关闭连接
func (c *TorchServeClient) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

func (c *TorchServeClient) newRequest(ctx context.Context) *resty.Request {
	return applyAuth(c.client.R().SetContext(ctx), c.Auth)
}

// applyAuth 按认证类型设置请求头
func applyAuth(req *resty.Request, auth *AuthConfig) *resty.Request {
	if auth == nil {
		return req
	}
	switch auth.Type {
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "bearer":
		req.SetAuthToken(auth.Token)
	case "api_key":
		req.SetHeader("X-API-Key", auth.APIKey)
	}
	return req
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

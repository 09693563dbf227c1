package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/pkg/conv"
)

// KServeProtocol 指定 KServe 协议版本。
const (
	KServeV1 = "v1"
	KServeV2 = "v2"
)

// KServeClient 是 KServe V1/V2 协议的文本 embedding 客户端，实现 core.TextEmbedder。
//
// KServe V1（基于 TensorFlow Serving REST）：
//   - Predict: POST /v1/models/{model_name}:predict
//   - 请求：{"instances": ["<text>"]}
//   - 响应：{"predictions": [[...]]}
//   - Model Ready: GET /v1/models/{model_name}
//
// KServe V2（Open Inference Protocol）：
//   - Infer: POST /v2/models/{model_name}[/versions/{version}]/infer
//   - 请求：{"inputs": [{"name": "text", "shape": [1], "datatype": "BYTES", "data": ["<text>"]}]}
//   - 响应：{"outputs": [{"name": "...", "shape": [1, dim], "data": [...]}]}
//   - Model Ready: GET /v2/models/{model_name}/ready
//
// 使用场景：Triton / KServe / ModelMesh 部署的句向量模型。
type KServeClient struct {
	// Endpoint 服务根地址，如 "http://localhost:8000"
	Endpoint string
	// ModelName 模型名称
	ModelName string
	// ModelVersion 模型版本（可选，V2 路径中会带 /versions/{version}）
	ModelVersion string
	// Protocol 协议版本："v1" 或 "v2"，默认 "v2"
	Protocol string
	// InputName V2 协议下输入张量名称，默认 "text"
	InputName string
	// OutputName V2 协议下期望的输出张量名称；空则取 outputs[0]
	OutputName string
	// Timeout 请求超时
	Timeout time.Duration
	// Auth 认证配置
	Auth *AuthConfig

	client *resty.Client
}

// NewKServeClient 创建 KServe 客户端。endpoint 为根地址，modelName 为模型名。
func NewKServeClient(endpoint, modelName string, opts ...KServeOption) *KServeClient {
	c := &KServeClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Protocol:  KServeV2,
		InputName: "text",
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

// KServeOption 配置 KServe 客户端
type KServeOption func(*KServeClient)

// WithKServeVersion 设置模型版本（V2 路径会带 /versions/{version}）
func WithKServeVersion(version string) KServeOption {
	return func(c *KServeClient) {
		c.ModelVersion = version
	}
}

// WithKServeProtocol 设置协议："v1" 或 "v2"，其它值忽略
func WithKServeProtocol(protocol string) KServeOption {
	return func(c *KServeClient) {
		if protocol == KServeV1 || protocol == KServeV2 {
			c.Protocol = protocol
		}
	}
}

// WithKServeInputName 设置 V2 协议下输入张量名称
func WithKServeInputName(name string) KServeOption {
	return func(c *KServeClient) {
		if name != "" {
			c.InputName = name
		}
	}
}

// WithKServeOutputName 设置 V2 协议下期望的输出张量名称
func WithKServeOutputName(name string) KServeOption {
	return func(c *KServeClient) {
		c.OutputName = name
	}
}

// WithKServeTimeout 设置超时
func WithKServeTimeout(timeout time.Duration) KServeOption {
	return func(c *KServeClient) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithKServeAuth 设置认证
func WithKServeAuth(auth *AuthConfig) KServeOption {
	return func(c *KServeClient) {
		c.Auth = auth
	}
}

// WithKServeRestyClient 设置自定义 resty 客户端
func WithKServeRestyClient(client *resty.Client) KServeOption {
	return func(c *KServeClient) {
		c.client = client
	}
}

// EmbedText 实现 core.TextEmbedder
func (c *KServeClient) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if c.Protocol == KServeV1 {
		body, err := c.post(ctx, fmt.Sprintf("%s/v1/models/%s:predict", c.Endpoint, c.ModelName),
			map[string]any{"instances": []string{text}})
		if err != nil {
			return nil, err
		}
		return parseEmbedding(body)
	}

	body, err := c.post(ctx, c.v2Path()+"/infer", map[string]any{
		"inputs": []map[string]any{{
			"name":     c.InputName,
			"shape":    []int{1},
			"datatype": "BYTES",
			"data":     []string{text},
		}},
	})
	if err != nil {
		return nil, err
	}
	return c.parseV2Output(body)
}

// v2Output V2 响应中的单个输出张量
type v2Output struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Data  []any  `json:"data"`
}

// parseV2Output 取名称匹配的输出张量（或第一个）。输出为 [batch, dim] 时只取第一行。
func (c *KServeClient) parseV2Output(body []byte) ([]float64, error) {
	var resp struct {
		Outputs []v2Output `json:"outputs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError("kserve v2", body, err)
	}
	if len(resp.Outputs) == 0 {
		return nil, parseError("kserve v2", body, errors.New("no outputs"))
	}
	out := resp.Outputs[0]
	if c.OutputName != "" {
		for _, o := range resp.Outputs {
			if o.Name == c.OutputName {
				out = o
				break
			}
		}
	}
	data := out.Data
	if len(out.Shape) == 2 && out.Shape[0] > 1 && out.Shape[1] > 0 && len(data) >= out.Shape[1] {
		data = data[:out.Shape[1]]
	}
	vec, ok := conv.ToFloat64Slice(data)
	if !ok || len(vec) == 0 {
		return nil, parseError("kserve v2", body, errors.New("empty or non-numeric output"))
	}
	return vec, nil
}

func (c *KServeClient) post(ctx context.Context, url string, body any) ([]byte, error) {
	resp, err := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, core.NewCapabilityError(core.ModuleService, fmt.Sprintf("kserve %s request failed", c.ModelName), err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, core.NewCapabilityError(core.ModuleService, fmt.Sprintf("kserve %s", c.ModelName),
			fmt.Errorf("status=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 256)))
	}
	return resp.Body(), nil
}

// Health 检查模型是否就绪
func (c *KServeClient) Health(ctx context.Context) error {
	url := c.v2Path() + "/ready"
	if c.Protocol == KServeV1 {
		url = fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
	}
	resp, err := c.newRequest(ctx).Get(url)
	if err != nil {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, "model ready check failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, "model ready check failed",
			fmt.Errorf("status=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 256)))
	}
	return nil
}

// Close 关闭连接
func (c *KServeClient) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

func (c *KServeClient) v2Path() string {
	path := fmt.Sprintf("%s/v2/models/%s", c.Endpoint, c.ModelName)
	if c.ModelVersion != "" {
		path = fmt.Sprintf("%s/versions/%s", path, c.ModelVersion)
	}
	return path
}

func (c *KServeClient) newRequest(ctx context.Context) *resty.Request {
	return applyAuth(c.client.R().SetContext(ctx), c.Auth)
}

var (
	_ core.TextEmbedder  = (*KServeClient)(nil)
	_ core.HealthChecker = (*KServeClient)(nil)
)

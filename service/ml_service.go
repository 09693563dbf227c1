package service

import "time"

// ServiceType 推理能力的后端类型
type ServiceType string

const (
	ServiceTypeTorchServe ServiceType = "torch_serve" // 远程 TorchServe
	ServiceTypeKServe     ServiceType = "kserve"      // KServe V1/V2 协议（仅文本 embedding）
	ServiceTypeLocal      ServiceType = "local"       // 进程内模型（model 包），用于离线运行和测试
)

// ServiceConfig 单个推理能力的配置
type ServiceConfig struct {
	// Type 服务类型，默认 torch_serve
	Type ServiceType `yaml:"type" json:"type"`

	// Endpoint 服务端点，如 "http://localhost:8080"
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// ModelName 模型名称，对应 /predictions/{model_name}
	ModelName string `yaml:"model_name" json:"model_name"`

	// ModelVersion 模型版本（可选）
	ModelVersion string `yaml:"model_version" json:"model_version"`

	// Protocol KServe 协议版本 v1 / v2（仅 kserve 类型）
	Protocol string `yaml:"protocol" json:"protocol"`

	// Timeout 超时时间（秒），0 表示使用默认值
	Timeout int `yaml:"timeout" json:"timeout"`

	// Path 本地模型文件路径（仅 local 类型）
	Path string `yaml:"path" json:"path"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `yaml:"auth" json:"auth"`
}

// timeout 返回超时时间，未配置时使用 fallback
func (c *ServiceConfig) timeout(fallback time.Duration) time.Duration {
	if c == nil || c.Timeout <= 0 {
		return fallback
	}
	return time.Duration(c.Timeout) * time.Second
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `yaml:"type" json:"type"` // "basic", "bearer", "api_key"
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Token    string `yaml:"token" json:"token"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// FetchConfig 图片下载配置
type FetchConfig struct {
	// Timeout 单次下载超时（秒）
	Timeout int `yaml:"timeout" json:"timeout"`

	// MaxBytes 单张图片最大字节数
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`

	// RateLimit 每秒最多发起的下载数，<= 0 表示不限制
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// Burst 限流的突发容量
	Burst int `yaml:"burst" json:"burst"`

	// UserAgent 请求头 User-Agent
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// CapabilitiesConfig 四个推理能力和图片下载的配置
type CapabilitiesConfig struct {
	TextEmbedding  ServiceConfig `yaml:"text_embedding" json:"text_embedding"`
	Sentiment      ServiceConfig `yaml:"sentiment" json:"sentiment"`
	ImageEmbedding ServiceConfig `yaml:"image_embedding" json:"image_embedding"`
	OCR            ServiceConfig `yaml:"ocr" json:"ocr"`
	Fetch          FetchConfig   `yaml:"fetch" json:"fetch"`
}

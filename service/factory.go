package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/model"
)

// Capabilities 是打分链路依赖的全部推理能力，启动时构造一次，通过依赖注入传给 enrich。
type Capabilities struct {
	TextEmbedder  core.TextEmbedder
	Sentiment     core.SentimentClassifier
	ImageEmbedder core.ImageEmbedder
	OCR           core.OCRReader
	Fetcher       core.Fetcher
}

// NewCapabilities 根据配置创建推理能力（工厂方法）。
func NewCapabilities(config *CapabilitiesConfig) (*Capabilities, error) {
	if config == nil {
		return nil, fmt.Errorf("capabilities config is required")
	}

	textEmbedder, err := NewTextEmbedder(&config.TextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("text_embedding: %w", err)
	}
	sentiment, err := NewSentimentClassifier(&config.Sentiment)
	if err != nil {
		return nil, fmt.Errorf("sentiment: %w", err)
	}
	if err := ValidateConfig(&config.ImageEmbedding); err != nil {
		return nil, fmt.Errorf("image_embedding: %w", err)
	}
	if err := ValidateConfig(&config.OCR); err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	if config.ImageEmbedding.Type != ServiceTypeTorchServe || config.OCR.Type != ServiceTypeTorchServe {
		return nil, fmt.Errorf("image_embedding and ocr only support %s", ServiceTypeTorchServe)
	}

	return &Capabilities{
		TextEmbedder:  textEmbedder,
		Sentiment:     sentiment,
		ImageEmbedder: NewImageEmbeddingClient(newTorchServe(&config.ImageEmbedding)),
		OCR:           NewOCRClient(newTorchServe(&config.OCR)),
		Fetcher:       NewHTTPFetcher(config.Fetch),
	}, nil
}

// NewTextEmbedder 创建文本 embedding 能力：torch_serve、kserve 或本地 Word2Vec
func NewTextEmbedder(config *ServiceConfig) (core.TextEmbedder, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	switch config.Type {
	case ServiceTypeLocal:
		return model.LoadWord2VecFromFile(config.Path)
	case ServiceTypeKServe:
		return newKServe(config), nil
	default:
		return NewTextEmbeddingClient(newTorchServe(config)), nil
	}
}

// NewSentimentClassifier 创建情感分类能力：torch_serve 或本地词典
func NewSentimentClassifier(config *ServiceConfig) (core.SentimentClassifier, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.Type == ServiceTypeKServe {
		return nil, fmt.Errorf("sentiment does not support %s", ServiceTypeKServe)
	}
	if config.Type == ServiceTypeLocal {
		if config.Path == "" {
			return model.NewLexiconSentiment(nil, nil), nil
		}
		return model.LoadLexiconFromFile(config.Path)
	}
	return NewSentimentClient(newTorchServe(config)), nil
}

func newTorchServe(config *ServiceConfig) *TorchServeClient {
	opts := []TorchServeOption{
		WithTorchServeTimeout(config.timeout(core.DefaultCapabilityTimeout)),
	}
	if config.ModelVersion != "" {
		opts = append(opts, WithTorchServeVersion(config.ModelVersion))
	}
	if config.Auth != nil {
		opts = append(opts, WithTorchServeAuth(config.Auth))
	}
	return NewTorchServeClient(config.Endpoint, config.ModelName, opts...)
}

func newKServe(config *ServiceConfig) *KServeClient {
	opts := []KServeOption{
		WithKServeTimeout(config.timeout(core.DefaultCapabilityTimeout)),
		WithKServeProtocol(config.Protocol),
	}
	if config.ModelVersion != "" {
		opts = append(opts, WithKServeVersion(config.ModelVersion))
	}
	if config.Auth != nil {
		opts = append(opts, WithKServeAuth(config.Auth))
	}
	return NewKServeClient(config.Endpoint, config.ModelName, opts...)
}

// ValidateConfig 验证服务配置，Type 为空时补为 torch_serve
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}
	if config.Type == "" {
		config.Type = ServiceTypeTorchServe
	}
	switch config.Type {
	case ServiceTypeTorchServe, ServiceTypeKServe:
		if config.Endpoint == "" {
			return fmt.Errorf("endpoint is required")
		}
		if !hasHTTPPrefix(config.Endpoint) {
			return fmt.Errorf("endpoint must start with http:// or https://: %s", config.Endpoint)
		}
		if config.ModelName == "" {
			return fmt.Errorf("model name is required")
		}
	case ServiceTypeLocal:
	default:
		return fmt.Errorf("unsupported service type: %s", config.Type)
	}
	return nil
}

// hasHTTPPrefix 检查是否包含 HTTP 前缀
func hasHTTPPrefix(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

// Health 检查所有支持健康检查的能力
func (c *Capabilities) Health(ctx context.Context) error {
	capabilities := []struct {
		name string
		impl any
	}{
		{"text_embedding", c.TextEmbedder},
		{"sentiment", c.Sentiment},
		{"image_embedding", c.ImageEmbedder},
		{"ocr", c.OCR},
	}
	for _, capability := range capabilities {
		hc, ok := capability.impl.(core.HealthChecker)
		if !ok {
			continue
		}
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("%s: %w", capability.name, err)
		}
	}
	return nil
}

// Close 释放推理能力持有的连接
func (c *Capabilities) Close() error {
	var errs []error
	for _, impl := range []any{c.TextEmbedder, c.Sentiment, c.ImageEmbedder, c.OCR} {
		if closer, ok := impl.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

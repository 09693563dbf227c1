// Package config 加载服务配置：默认值 → YAML 文件 → .env / 环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/service"
	"github.com/siddharth-shringarpure/CloutChain/similarity"
	"github.com/siddharth-shringarpure/CloutChain/store"
)

// 缓存后端
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config 是服务的完整配置（支持 YAML）。
type Config struct {
	Server       ServerConfig               `yaml:"server"`
	Scoring      ScoringConfig              `yaml:"scoring"`
	Capabilities service.CapabilitiesConfig `yaml:"capabilities"`
	BlankImage   BlankImageConfig           `yaml:"blank_image"`
	Cache        CacheConfig                `yaml:"cache"`
	Log          LogConfig                  `yaml:"log"`
	Metrics      MetricsConfig              `yaml:"metrics"`
}

// ServerConfig HTTP 服务配置，超时单位为秒
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	Mode            string `yaml:"mode"` // gin 模式：debug / release / test
	ReadTimeout     int    `yaml:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

// ScoringConfig 打分链路配置
type ScoringConfig struct {
	Weights       similarity.Weights `yaml:"weights"`
	DecayRate     float64            `yaml:"decay_rate"`
	OCRConfidence float64            `yaml:"ocr_confidence"`
	Workers       int                `yaml:"workers"`

	// Filter 候选记录的 CEL 过滤表达式（可选），如 coin.uniqueHolders > 10
	Filter string `yaml:"filter"`
}

// BlankImageConfig 空白图片配置，URL 为空时使用内置占位图
type BlankImageConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	Backend string            `yaml:"backend"`
	TTL     int               `yaml:"ttl"` // 秒，0 表示不过期
	Redis   store.RedisConfig `yaml:"redis"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text / json
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default 返回默认配置
func Default() *Config {
	torchServe := func(model string) service.ServiceConfig {
		return service.ServiceConfig{
			Type:      service.ServiceTypeTorchServe,
			Endpoint:  "http://localhost:8080",
			ModelName: model,
		}
	}
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			Mode:            "release",
			ReadTimeout:     30,
			WriteTimeout:    300,
			ShutdownTimeout: 10,
		},
		Scoring: ScoringConfig{
			Weights:       similarity.DefaultWeights(),
			DecayRate:     core.DefaultDecayRate,
			OCRConfidence: core.DefaultOCRConfidence,
			Workers:       core.DefaultWorkers,
		},
		Capabilities: service.CapabilitiesConfig{
			TextEmbedding:  torchServe("text_embedding"),
			Sentiment:      torchServe("sentiment"),
			ImageEmbedding: torchServe("clip"),
			OCR:            torchServe("easyocr"),
			Fetch: service.FetchConfig{
				Timeout:   int(core.DefaultFetchTimeout.Seconds()),
				MaxBytes:  core.DefaultMaxImageBytes,
				RateLimit: 20,
				Burst:     10,
				UserAgent: "cloutchain-scorer/1.0",
			},
		},
		Cache: CacheConfig{
			Backend: CacheBackendNone,
			TTL:     3600,
			Redis: store.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "cloutchain:score:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load 按顺序加载配置：
//  1. 默认值
//  2. YAML 文件（path 非空时）
//  3. .env 文件（envFiles 为空时读取当前目录的 .env，文件不存在时忽略）
//  4. 环境变量
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置。
// TORCHSERVE_ENDPOINT 作用于全部推理能力，单个能力的 *_ENDPOINT 优先。
func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.Mode = getEnv("GIN_MODE", c.Server.Mode)

	c.Scoring.Weights.Sentiment = getEnvAsFloat("SCORING_SENTIMENT_WEIGHT", c.Scoring.Weights.Sentiment)
	c.Scoring.Weights.Embed = getEnvAsFloat("SCORING_EMBED_WEIGHT", c.Scoring.Weights.Embed)
	c.Scoring.Weights.Financial = getEnvAsFloat("SCORING_FINANCIAL_WEIGHT", c.Scoring.Weights.Financial)
	c.Scoring.DecayRate = getEnvAsFloat("SCORING_DECAY_RATE", c.Scoring.DecayRate)
	c.Scoring.OCRConfidence = getEnvAsFloat("SCORING_OCR_CONFIDENCE", c.Scoring.OCRConfidence)
	c.Scoring.Workers = getEnvAsInt("SCORING_WORKERS", c.Scoring.Workers)
	c.Scoring.Filter = getEnv("SCORING_FILTER", c.Scoring.Filter)

	capabilities := []struct {
		prefix string
		cfg    *service.ServiceConfig
	}{
		{"TEXT_EMBEDDING", &c.Capabilities.TextEmbedding},
		{"SENTIMENT", &c.Capabilities.Sentiment},
		{"IMAGE_EMBEDDING", &c.Capabilities.ImageEmbedding},
		{"OCR", &c.Capabilities.OCR},
	}
	shared := getEnv("TORCHSERVE_ENDPOINT", "")
	for _, capability := range capabilities {
		sc := capability.cfg
		if shared != "" {
			sc.Endpoint = shared
		}
		sc.Type = service.ServiceType(getEnv(capability.prefix+"_TYPE", string(sc.Type)))
		sc.Endpoint = getEnv(capability.prefix+"_ENDPOINT", sc.Endpoint)
		sc.ModelName = getEnv(capability.prefix+"_MODEL", sc.ModelName)
		sc.Path = getEnv(capability.prefix+"_PATH", sc.Path)
	}

	fetch := &c.Capabilities.Fetch
	fetch.Timeout = getEnvAsInt("FETCH_TIMEOUT", fetch.Timeout)
	fetch.MaxBytes = int64(getEnvAsInt("FETCH_MAX_BYTES", int(fetch.MaxBytes)))
	fetch.RateLimit = getEnvAsFloat("FETCH_RATE_LIMIT", fetch.RateLimit)

	c.BlankImage.URL = getEnv("BLANK_IMAGE_URL", c.BlankImage.URL)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.TTL = getEnvAsInt("CACHE_TTL", c.Cache.TTL)
	c.Cache.Redis.Addr = getEnv("REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = getEnv("REDIS_PASSWORD", c.Cache.Redis.Password)
	c.Cache.Redis.DB = getEnvAsInt("REDIS_DB", c.Cache.Redis.DB)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", c.Metrics.Enabled)
}

// Validate 验证配置，推理能力的配置由 service.ValidateConfig 在创建客户端时校验
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	w := c.Scoring.Weights
	if w.Sentiment < 0 || w.Embed < 0 || w.Financial < 0 {
		errs = append(errs, errors.New("scoring.weights must be non-negative"))
	}
	if c.Scoring.DecayRate <= 0 {
		errs = append(errs, errors.New("scoring.decay_rate must be positive"))
	}
	if c.Scoring.OCRConfidence < 0 || c.Scoring.OCRConfidence >= 1 {
		errs = append(errs, errors.New("scoring.ocr_confidence must be in [0, 1)"))
	}
	if c.Scoring.Workers <= 0 {
		errs = append(errs, errors.New("scoring.workers must be positive"))
	}
	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache.backend: %s", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must be non-negative"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}
	if len(errs) > 0 {
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "invalid config", errors.Join(errs...))
	}
	return nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

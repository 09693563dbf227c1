// Package scoring 编排一次打分请求：校验、候选过滤、缓存、预处理与相似度聚合。
package scoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/observability"
	"github.com/siddharth-shringarpure/CloutChain/pkg/dsl"
	"github.com/siddharth-shringarpure/CloutChain/preprocess"
	"github.com/siddharth-shringarpure/CloutChain/similarity"
)

// Request 是 /predict 的请求体
type Request struct {
	CoinData    []core.RawRecord `json:"coin_data"`
	ExamplePost core.RawRecord   `json:"example_post"`
}

// Validate 校验请求结构，字段级错误在预处理阶段报告
func (r *Request) Validate() error {
	if r == nil {
		return core.NewDataError(core.ModuleScoring, "request body is required")
	}
	if len(r.CoinData) == 0 {
		return core.NewDataError(core.ModuleScoring, "coin_data must contain at least one record")
	}
	if r.ExamplePost == nil {
		return core.NewDataError(core.ModuleScoring, "example_post is required")
	}
	return nil
}

// Scorer 对一个候选批次和一条参考记录打分。
// 每次请求独立拟合归一化参数，Scorer 本身不保存请求间状态（缓存除外）。
type Scorer struct {
	Preprocessor *preprocess.Preprocessor
	Weights      similarity.Weights

	// Filter 候选过滤器（可选）
	Filter *dsl.RecordFilter

	// Cache 结果缓存（可选）
	Cache *ResultCache

	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// NewScorer 创建打分器，使用默认权重
func NewScorer(p *preprocess.Preprocessor) *Scorer {
	return &Scorer{
		Preprocessor: p,
		Weights:      similarity.DefaultWeights(),
		Logger:       logrus.StandardLogger(),
	}
}

// WithWeights 设置权重
func (s *Scorer) WithWeights(w similarity.Weights) *Scorer {
	s.Weights = w
	return s
}

// WithFilter 设置候选过滤器
func (s *Scorer) WithFilter(f *dsl.RecordFilter) *Scorer {
	s.Filter = f
	return s
}

// WithCache 设置结果缓存
func (s *Scorer) WithCache(c *ResultCache) *Scorer {
	s.Cache = c
	return s
}

// WithMetrics 设置指标
func (s *Scorer) WithMetrics(m *observability.Metrics) *Scorer {
	s.Metrics = m
	return s
}

// WithLogger 设置日志
func (s *Scorer) WithLogger(logger logrus.FieldLogger) *Scorer {
	if logger != nil {
		s.Logger = logger
	}
	return s
}

// Score 计算参考记录与候选批次的加权相似度。
// 请求数据缺失或格式错误时返回 DATA_ERROR；图片问题只会让对应记录降级，不会失败。
func (s *Scorer) Score(ctx context.Context, req *Request) (res *similarity.Result, err error) {
	start := time.Now()
	outcome := observability.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = observability.OutcomeError
		}
		s.Metrics.RecordRequest(outcome, time.Since(start))
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	candidates, _, err := s.Filter.Filter(req.CoinData)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, core.NewDataError(core.ModuleScoring, "no coin_data records match filter %q", s.Filter.Expr())
	}
	logger := s.logger(ctx).WithFields(logrus.Fields{
		"candidates": len(candidates),
		"filtered":   len(req.CoinData) - len(candidates),
	})

	key := s.cacheKey(ctx, &Request{CoinData: candidates, ExamplePost: req.ExamplePost})
	if key != "" {
		cached, cerr := s.Cache.Get(ctx, key)
		switch {
		case cerr != nil:
			logger.WithError(cerr).Warn("result cache read failed")
		case cached != nil:
			s.Metrics.CacheHit()
			outcome = observability.OutcomeCached
			logger.Debug("result cache hit")
			return cached, nil
		default:
			s.Metrics.CacheMiss()
		}
	}

	batch, scaler, err := s.Preprocessor.PreprocessBatch(ctx, candidates)
	if err != nil {
		return nil, err
	}
	ref, err := s.Preprocessor.PreprocessSingle(ctx, req.ExamplePost, scaler)
	if err != nil {
		return nil, err
	}

	res, err = similarity.Compare(ref, batch, s.Weights)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordCandidates(len(batch))

	// 降级结果只属于本次请求，不写缓存，图片恢复后下一次请求会重新下载
	degraded := countDegraded(ref, batch)
	if key != "" && degraded == 0 {
		if perr := s.Cache.Put(ctx, key, res); perr != nil {
			logger.WithError(perr).Warn("result cache write failed")
		}
	}

	logger.WithFields(logrus.Fields{
		"total":    res.WeightedTotal,
		"degraded": degraded,
	}).Info("scored batch")
	return res, nil
}

// countDegraded 统计图片降级的记录数（含参考记录）
func countDegraded(ref *core.EnrichedRecord, batch []*core.EnrichedRecord) int {
	n := 0
	if ref.ImageDegraded {
		n++
	}
	for _, rec := range batch {
		if rec.ImageDegraded {
			n++
		}
	}
	return n
}

// cacheKey 返回缓存 key，未启用缓存或计算失败时返回空字符串
func (s *Scorer) cacheKey(ctx context.Context, req *Request) string {
	if s.Cache == nil {
		return ""
	}
	params := cacheParams{Weights: s.Weights}
	if s.Preprocessor != nil {
		params.DecayRate = s.Preprocessor.DecayRate
	}
	if s.Filter != nil {
		params.Filter = s.Filter.Expr()
	}
	key, err := s.Cache.Key(req, params)
	if err != nil {
		s.logger(ctx).WithError(err).Warn("result cache key failed")
		return ""
	}
	return key
}

type requestIDKey struct{}

// ContextWithRequestID 在 context 中记录请求 ID，Scorer 的日志会带上该字段
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 读取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Scorer) logger(ctx context.Context) logrus.FieldLogger {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}

// Package preprocess 把原始记录转换为 EnrichedRecord：
// 金融列归一化、文本/图片特征派生以及候选记录的时间衰减权重。
package preprocess

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/enrich"
	"github.com/siddharth-shringarpure/CloutChain/feature"
)

// TextEnricher 派生文本的情感和 embedding，由 enrich.TextEnricher 实现
type TextEnricher interface {
	Enrich(ctx context.Context, text string) (core.Sentiment, []float64, error)
}

// ImageEnricher 派生图片的 embedding 和 OCR 文本，由 enrich.ImageEnricher 实现
type ImageEnricher interface {
	Enrich(ctx context.Context, url string) (enrich.ImageResult, error)
}

// Preprocessor 是单次请求的预处理器。
// 本身无状态，归一化参数随 PreprocessBatch 返回，由调用方传给 PreprocessSingle。
type Preprocessor struct {
	Text  TextEnricher
	Image ImageEnricher

	// Workers 行级特征派生的最大并发数（<= 0 时使用 core.DefaultWorkers）
	Workers int

	// DecayRate 时间衰减系数（每秒，<= 0 时使用 core.DefaultDecayRate）
	DecayRate float64

	Logger logrus.FieldLogger
}

// NewPreprocessor 创建预处理器
func NewPreprocessor(text TextEnricher, image ImageEnricher) *Preprocessor {
	return &Preprocessor{
		Text:      text,
		Image:     image,
		Workers:   core.DefaultWorkers,
		DecayRate: core.DefaultDecayRate,
		Logger:    logrus.StandardLogger(),
	}
}

// PreprocessSingle 预处理参考记录。scaler 必须是批次拟合出的参数；参考记录没有时间权重。
func (p *Preprocessor) PreprocessSingle(ctx context.Context, ref core.RawRecord, scaler *feature.MinMaxScaler) (*core.EnrichedRecord, error) {
	if ref == nil {
		return nil, core.NewDataError(core.ModulePreprocess, "example_post is required")
	}
	financial, err := scaler.Transform(ref)
	if err != nil {
		return nil, fmt.Errorf("example_post: %w", err)
	}
	rec, err := p.enrichRow(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("example_post: %w", err)
	}
	rec.Financial = financial
	return rec, nil
}

// PreprocessBatch 预处理候选批次：拟合一次归一化参数，并发派生每行特征，最后计算时间权重。
// 返回的 scaler 用于 PreprocessSingle。
func (p *Preprocessor) PreprocessBatch(ctx context.Context, batch []core.RawRecord) ([]*core.EnrichedRecord, *feature.MinMaxScaler, error) {
	if len(batch) == 0 {
		return nil, nil, core.NewDataError(core.ModulePreprocess, "coin_data must contain at least one record")
	}

	// 先校验廉价字段，避免在注定失败的请求上调用推理能力
	created := make([]time.Time, len(batch))
	for i, rec := range batch {
		if rec == nil {
			return nil, nil, core.NewDataError(core.ModulePreprocess, "coin_data[%d] is null", i)
		}
		t, err := rec.CreatedAt()
		if err != nil {
			return nil, nil, fmt.Errorf("coin_data[%d]: %w", i, err)
		}
		created[i] = t
	}

	scaled, scaler, err := feature.FitAndScale(batch)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*core.EnrichedRecord, len(batch))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers())
	for i, raw := range batch {
		i, raw := i, raw
		eg.Go(func() error {
			rec, err := p.enrichRow(egCtx, raw)
			if err != nil {
				return fmt.Errorf("coin_data[%d]: %w", i, err)
			}
			rec.Financial = scaled[i]
			rec.CreatedAt = created[i]
			out[i] = rec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	weights := TimeWeights(created, p.decayRate())
	degraded := 0
	for i, rec := range out {
		rec.TimeWeight = weights[i]
		if rec.ImageDegraded {
			degraded++
		}
	}

	p.logger().WithFields(logrus.Fields{
		"records":  len(out),
		"degraded": degraded,
	}).Debug("batch preprocessed")

	return out, scaler, nil
}

// enrichRow 派生一条记录的文本和图片特征（不含金融向量和时间权重）
func (p *Preprocessor) enrichRow(ctx context.Context, raw core.RawRecord) (*core.EnrichedRecord, error) {
	rec := &core.EnrichedRecord{Raw: raw}

	name, _ := raw.Text(core.FieldName)
	s, vec, err := p.Text.Enrich(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	rec.NameSentiment, rec.NameEmbed = s, vec

	desc, _ := raw.Text(core.FieldDescription)
	s, vec, err = p.Text.Enrich(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("description: %w", err)
	}
	rec.DescriptionSentiment, rec.DescriptionEmbed = s, vec

	url, _ := raw.ImageURL()
	img, err := p.Image.Enrich(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	rec.ImgEmbed = img.Embedding
	rec.ImgOCR = img.OCRText
	rec.ImageDegraded = img.Degraded

	s, vec, err = p.Text.Enrich(ctx, img.OCRText)
	if err != nil {
		return nil, fmt.Errorf("image text: %w", err)
	}
	rec.ImgTextSentiment, rec.ImgTextEmbed = s, vec

	return rec, nil
}

// TimeWeights 计算时间衰减权重：w = exp(-rate * (T_max - t))，t 以秒为单位。
// 最新的记录权重为 1；权重随时间单调不增，并且下限为最小正浮点数，保证始终大于 0。
func TimeWeights(times []time.Time, rate float64) []float64 {
	if len(times) == 0 {
		return nil
	}
	newest := times[0]
	for _, t := range times[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	weights := make([]float64, len(times))
	for i, t := range times {
		age := newest.Sub(t).Seconds()
		w := math.Exp(-rate * age)
		if w < math.SmallestNonzeroFloat64 {
			w = math.SmallestNonzeroFloat64
		}
		weights[i] = w
	}
	return weights
}

func (p *Preprocessor) workers() int {
	if p.Workers <= 0 {
		return core.DefaultWorkers
	}
	return p.Workers
}

func (p *Preprocessor) decayRate() float64 {
	if p.DecayRate <= 0 {
		return core.DefaultDecayRate
	}
	return p.DecayRate
}

func (p *Preprocessor) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}

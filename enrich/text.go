package enrich

import (
	"context"
	"sync"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// SentimentFromLabel 把分类器的原始标签映射为 {-1, 0, 1}。
// LABEL_2 → 1，LABEL_1 → 0，其他任何标签（包括 LABEL_0 和未知标签）→ -1。
func SentimentFromLabel(label string) core.Sentiment {
	switch label {
	case core.LabelPositive:
		return core.SentimentPositive
	case core.LabelNeutral:
		return core.SentimentNeutral
	default:
		return core.SentimentNegative
	}
}

// TextEnricher 为一段文本派生情感和 embedding。
//
// 空白文本不调用分类器，情感为 0，embedding 为空字符串的 embedding（首次使用时计算一次并复用）。
// 推理能力失败会升级为 DATA_ERROR，整个请求失败。
//
// 返回的 embedding 可能与其他记录共享底层数组，调用方只读。
type TextEnricher struct {
	embedder   core.TextEmbedder
	classifier core.SentimentClassifier

	mu    sync.Mutex
	blank []float64
}

// NewTextEnricher 创建文本特征派生器
func NewTextEnricher(embedder core.TextEmbedder, classifier core.SentimentClassifier) *TextEnricher {
	return &TextEnricher{
		embedder:   embedder,
		classifier: classifier,
	}
}

// Enrich 返回文本的情感和 embedding
func (e *TextEnricher) Enrich(ctx context.Context, text string) (core.Sentiment, []float64, error) {
	if core.IsBlankText(text) {
		blank, err := e.BlankEmbedding(ctx)
		if err != nil {
			return core.SentimentNeutral, nil, err
		}
		return core.SentimentNeutral, blank, nil
	}

	label, err := e.classifier.ClassifySentiment(ctx, text)
	if err != nil {
		return core.SentimentNeutral, nil, textCapabilityError("classify sentiment", err)
	}

	vec, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return core.SentimentNeutral, nil, textCapabilityError("embed text", err)
	}
	if len(vec) == 0 {
		return core.SentimentNeutral, nil, core.NewDataError(core.ModuleEnrich, "embed text: empty embedding")
	}

	return SentimentFromLabel(label), vec, nil
}

// BlankEmbedding 返回空字符串的 embedding。
// 计算成功后缓存；失败不缓存，下次调用会重试。
func (e *TextEnricher) BlankEmbedding(ctx context.Context) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.blank != nil {
		return e.blank, nil
	}
	vec, err := e.embedder.EmbedText(ctx, "")
	if err != nil {
		return nil, textCapabilityError("embed blank text", err)
	}
	if len(vec) == 0 {
		return nil, core.NewDataError(core.ModuleEnrich, "embed blank text: empty embedding")
	}
	e.blank = vec
	return vec, nil
}

// textCapabilityError 文本链路的能力异常是致命的
func textCapabilityError(op string, err error) error {
	return core.WrapDomainError(core.ModuleEnrich, core.ErrorCodeData, op, err)
}

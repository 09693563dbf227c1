// Package similarity 计算参考记录与候选记录之间的相似度，并按时间权重聚合。
package similarity

import (
	"math"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/feature"
)

// Weights 是总分中各部分的权重。
// 权重作用于各通道分数之和（情感 3 个通道、embedding 4 个通道），而不是均值。
type Weights struct {
	Sentiment float64 `yaml:"sentiment" json:"sentiment"`
	Embed     float64 `yaml:"embed" json:"embed"`
	Financial float64 `yaml:"financial" json:"financial"`
}

// DefaultWeights 返回默认权重：情感 0.15、embedding 0.10、金融 0.15
func DefaultWeights() Weights {
	return Weights{
		Sentiment: core.DefaultSentimentWeight,
		Embed:     core.DefaultEmbedWeight,
		Financial: core.DefaultFinancialWeight,
	}
}

// Score 是一对记录的相似度
type Score struct {
	Sentiment float64 // 三个情感通道的均值
	Embed     float64 // 四个 embedding 通道的均值
	Financial float64 // 金融向量的余弦相似度
	Total     float64 // 加权总分
}

// Result 是批次按时间权重聚合后的结果
type Result struct {
	WeightedSentiment float64 `json:"weighted_sentiment_similarity"`
	WeightedEmbed     float64 `json:"weighted_embed_similarity"`
	WeightedFinancial float64 `json:"weighted_financial_similarity"`
	WeightedTotal     float64 `json:"weighted_total_similarity"`
}

// SentimentAgreement 情感一致性：距离 0 → 1，距离 1 → 0.5，距离 2 → 0
func SentimentAgreement(a, b core.Sentiment) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	switch d {
	case 0:
		return 1
	case 1:
		return 0.5
	default:
		return 0
	}
}

// Pairwise 计算参考记录与一条候选记录的相似度。任一记录缺少派生字段时返回 DATA_ERROR。
func Pairwise(ref, cand *core.EnrichedRecord, w Weights) (Score, error) {
	if err := ref.Validate(); err != nil {
		return Score{}, err
	}
	if err := cand.Validate(); err != nil {
		return Score{}, err
	}

	sentimentSum := SentimentAgreement(ref.ImgTextSentiment, cand.ImgTextSentiment) +
		SentimentAgreement(ref.NameSentiment, cand.NameSentiment) +
		SentimentAgreement(ref.DescriptionSentiment, cand.DescriptionSentiment)

	embedSum := feature.Cosine(ref.ImgEmbed, cand.ImgEmbed) +
		feature.Cosine(ref.NameEmbed, cand.NameEmbed) +
		feature.Cosine(ref.DescriptionEmbed, cand.DescriptionEmbed) +
		feature.Cosine(ref.ImgTextEmbed, cand.ImgTextEmbed)

	financial := feature.Cosine(ref.Financial, cand.Financial)

	// 参考记录远超批次范围时归一化结果可能溢出为 Inf
	if !isFinite(sentimentSum) || !isFinite(embedSum) || !isFinite(financial) {
		return Score{}, core.NewDataError(core.ModuleSimilarity,
			"non-finite similarity (sentiment=%v embed=%v financial=%v)", sentimentSum, embedSum, financial)
	}

	return Score{
		Sentiment: sentimentSum / 3,
		Embed:     embedSum / 4,
		Financial: financial,
		Total:     w.Sentiment*sentimentSum + w.Embed*embedSum + w.Financial*financial,
	}, nil
}

// WeightedMean 计算加权平均。长度不一致、为空或权重之和不为正时返回 DATA_ERROR。
func WeightedMean(values, weights []float64) (float64, error) {
	if len(values) == 0 {
		return 0, core.NewDataError(core.ModuleSimilarity, "weighted mean of empty batch")
	}
	if len(values) != len(weights) {
		return 0, core.NewDataError(core.ModuleSimilarity, "got %d values and %d weights", len(values), len(weights))
	}
	var sum, wsum float64
	for i, v := range values {
		sum += v * weights[i]
		wsum += weights[i]
	}
	if !(wsum > 0) || math.IsInf(wsum, 0) {
		return 0, core.NewDataError(core.ModuleSimilarity, "time weights sum to %v", wsum)
	}
	return sum / wsum, nil
}

// Aggregate 按时间权重聚合每条候选记录的四个相似度
func Aggregate(scores []Score, weights []float64) (*Result, error) {
	n := len(scores)
	sentiment := make([]float64, n)
	embed := make([]float64, n)
	financial := make([]float64, n)
	total := make([]float64, n)
	for i, s := range scores {
		sentiment[i], embed[i], financial[i], total[i] = s.Sentiment, s.Embed, s.Financial, s.Total
	}

	var (
		res Result
		err error
	)
	if res.WeightedSentiment, err = WeightedMean(sentiment, weights); err != nil {
		return nil, err
	}
	if res.WeightedEmbed, err = WeightedMean(embed, weights); err != nil {
		return nil, err
	}
	if res.WeightedFinancial, err = WeightedMean(financial, weights); err != nil {
		return nil, err
	}
	if res.WeightedTotal, err = WeightedMean(total, weights); err != nil {
		return nil, err
	}
	for _, v := range []float64{res.WeightedSentiment, res.WeightedEmbed, res.WeightedFinancial, res.WeightedTotal} {
		if !isFinite(v) {
			return nil, core.NewDataError(core.ModuleSimilarity, "non-finite aggregated similarity %v", v)
		}
	}
	return &res, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Compare 计算参考记录与整个候选批次的聚合相似度，使用每条候选记录的 TimeWeight
func Compare(ref *core.EnrichedRecord, candidates []*core.EnrichedRecord, w Weights) (*Result, error) {
	if len(candidates) == 0 {
		return nil, core.NewDataError(core.ModuleSimilarity, "no candidates to compare")
	}
	scores := make([]Score, len(candidates))
	weights := make([]float64, len(candidates))
	for i, cand := range candidates {
		s, err := Pairwise(ref, cand, w)
		if err != nil {
			return nil, err
		}
		scores[i] = s
		weights[i] = cand.TimeWeight
	}
	return Aggregate(scores, weights)
}

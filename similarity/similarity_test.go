package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

func record(s core.Sentiment, embed, financial []float64) *core.EnrichedRecord {
	return &core.EnrichedRecord{
		NameSentiment:        s,
		DescriptionSentiment: s,
		ImgTextSentiment:     s,
		NameEmbed:            embed,
		DescriptionEmbed:     embed,
		ImgEmbed:             embed,
		ImgTextEmbed:         embed,
		Financial:            financial,
		TimeWeight:           1,
	}
}

func TestSentimentAgreement(t *testing.T) {
	tests := []struct {
		a, b core.Sentiment
		want float64
	}{
		{1, 1, 1},
		{-1, -1, 1},
		{0, 1, 0.5},
		{-1, 0, 0.5},
		{-1, 1, 0},
		{1, -1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SentimentAgreement(tt.a, tt.b), "%d vs %d", tt.a, tt.b)
	}
}

func TestPairwise_Identical(t *testing.T) {
	r := record(core.SentimentPositive, []float64{1, 2, 3}, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
	s, err := Pairwise(r, r, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Sentiment, 1e-12)
	assert.InDelta(t, 1.0, s.Embed, 1e-12)
	assert.InDelta(t, 1.0, s.Financial, 1e-12)
	// 0.15*3 + 0.10*4 + 0.15*1
	assert.InDelta(t, 1.0, s.Total, 1e-12)
}

func TestPairwise_Channels(t *testing.T) {
	ref := record(core.SentimentPositive, []float64{1, 0}, []float64{1, 0, 0, 0, 0})
	cand := record(core.SentimentPositive, []float64{1, 0}, []float64{0, 1, 0, 0, 0})
	cand.NameSentiment = core.SentimentNeutral
	cand.DescriptionSentiment = core.SentimentNegative
	cand.ImgTextEmbed = []float64{0, 1}

	s, err := Pairwise(ref, cand, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, (1+0.5+0)/3.0, s.Sentiment, 1e-12)
	assert.InDelta(t, 3.0/4.0, s.Embed, 1e-12, "img_text channel compares img_text embeddings")
	assert.InDelta(t, 0.0, s.Financial, 1e-12)
	assert.InDelta(t, 0.15*1.5+0.10*3, s.Total, 1e-12)
}

func TestPairwise_ZeroFinancialVector(t *testing.T) {
	ref := record(0, []float64{1}, []float64{0, 0, 0, 0, 0})
	s, err := Pairwise(ref, ref, DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Financial)
}

func TestPairwise_ExtrapolatedReference(t *testing.T) {
	// 参考记录远超批次范围，归一化后分量极大但仍有限
	ref := record(0, []float64{1}, []float64{1e300, 0, 0, 0, 0})
	cand := record(0, []float64{1}, []float64{1, 0, 0, 0, 0})
	s, err := Pairwise(ref, cand, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Financial, 1e-12)

	ref.Financial[1] = 1e300
	s, err = Pairwise(ref, cand, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/2, s.Financial, 1e-12)
}

func TestPairwise_NonFinite(t *testing.T) {
	cand := record(0, []float64{1}, []float64{1, 0, 0, 0, 0})
	tests := []struct {
		name string
		ref  *core.EnrichedRecord
	}{
		{"inf financial", record(0, []float64{1}, []float64{math.Inf(1), 0, 0, 0, 0})},
		{"nan financial", record(0, []float64{1}, []float64{math.NaN(), 0, 0, 0, 0})},
		{"nan embedding", record(0, []float64{math.NaN()}, []float64{1, 0, 0, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pairwise(tt.ref, cand, DefaultWeights())
			require.Error(t, err)
			assert.True(t, core.IsDataError(err))
		})
	}
}

func TestAggregate_NonFinite(t *testing.T) {
	_, err := Aggregate([]Score{{Sentiment: 1, Embed: 1, Financial: math.NaN(), Total: 1}}, []float64{1})
	require.Error(t, err)
	assert.True(t, core.IsDataError(err))
}

func TestPairwise_MissingField(t *testing.T) {
	ref := record(0, []float64{1}, make([]float64, 5))
	cand := record(0, []float64{1}, make([]float64, 5))
	cand.ImgEmbed = nil
	_, err := Pairwise(ref, cand, DefaultWeights())
	assert.True(t, core.IsDataError(err))
}

func TestWeightedMean(t *testing.T) {
	v, err := WeightedMean([]float64{1, 0}, []float64{3, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v, 1e-12)

	_, err = WeightedMean([]float64{1}, []float64{0})
	assert.True(t, core.IsDataError(err))
	_, err = WeightedMean(nil, nil)
	assert.True(t, core.IsDataError(err))
	_, err = WeightedMean([]float64{1}, []float64{1, 2})
	assert.True(t, core.IsDataError(err))
}

func TestCompare_IdenticalBatchScoresOne(t *testing.T) {
	ref := record(core.SentimentNegative, []float64{0.3, -0.2, 0.9}, []float64{0.5, 0.5, 0.5, 0.5, 0.5})
	cands := []*core.EnrichedRecord{ref, ref, ref}

	res, err := Compare(ref, cands, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.WeightedSentiment, 1e-12)
	assert.InDelta(t, 1.0, res.WeightedEmbed, 1e-12)
	assert.InDelta(t, 1.0, res.WeightedFinancial, 1e-12)
	assert.InDelta(t, 1.0, res.WeightedTotal, 1e-12)
}

func TestCompare_TimeWeighted(t *testing.T) {
	ref := record(core.SentimentPositive, []float64{1, 0}, []float64{1, 0, 0, 0, 0})
	same := record(core.SentimentPositive, []float64{1, 0}, []float64{1, 0, 0, 0, 0})
	opposite := record(core.SentimentNegative, []float64{0, 1}, []float64{0, 1, 0, 0, 0})
	same.TimeWeight = 1
	opposite.TimeWeight = 0.25

	res, err := Compare(ref, []*core.EnrichedRecord{same, opposite}, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, 1/1.25, res.WeightedSentiment, 1e-12)
	assert.InDelta(t, 1/1.25, res.WeightedEmbed, 1e-12)
	assert.InDelta(t, 1/1.25, res.WeightedFinancial, 1e-12)
	assert.InDelta(t, 1/1.25, res.WeightedTotal, 1e-12)

	_, err = Compare(ref, nil, DefaultWeights())
	assert.True(t, core.IsDataError(err))
}

package preprocess

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/enrich"
)

var blankText = []float64{0, 0, 1}

// fakeText 空白文本返回固定 embedding，"good" 开头为正面
type fakeText struct {
	active, peak atomic.Int32
	delay        time.Duration
	failOn       string
}

func (f *fakeText) Enrich(ctx context.Context, text string) (core.Sentiment, []float64, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if text == f.failOn && text != "" {
		return 0, nil, core.NewDataError(core.ModuleEnrich, "classify sentiment")
	}
	if core.IsBlankText(text) {
		return core.SentimentNeutral, blankText, nil
	}
	s := core.SentimentNegative
	if len(text) >= 4 && text[:4] == "good" {
		s = core.SentimentPositive
	}
	return s, []float64{float64(len(text)), 1, 0}, nil
}

type fakeImage struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeImage) Enrich(_ context.Context, url string) (enrich.ImageResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, url)
	f.mu.Unlock()
	if url == "" {
		return enrich.ImageResult{Embedding: []float64{1, 0}}, nil
	}
	if url == "http://bad" {
		return enrich.ImageResult{Embedding: []float64{1, 0}, Degraded: true, Stage: enrich.StageFetch}, nil
	}
	return enrich.ImageResult{Embedding: []float64{0, 1}, OCRText: "good vibes"}, nil
}

func coin(name, createdAt string, mcap float64) core.RawRecord {
	return core.RawRecord{
		"name":            name,
		"description":     "",
		"mediaPreviewUrl": "http://img/" + name,
		"totalVolume":     10.0,
		"volume24h":       5.0,
		"marketCap":       mcap,
		"uniqueHolders":   3.0,
		"transferCount":   7.0,
		"createdAt":       createdAt,
	}
}

func TestPreprocessBatch(t *testing.T) {
	img := &fakeImage{}
	p := NewPreprocessor(&fakeText{}, img)

	batch := []core.RawRecord{
		coin("good coin", "2025-04-10 12:00:00", 100),
		coin("bad coin", "2025-04-10 12:00:10", 300),
		coin("", "2025-04-10 11:59:00", 200),
	}
	recs, scaler, err := p.PreprocessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.NotNil(t, scaler)

	for _, rec := range recs {
		require.NoError(t, rec.Validate())
		assert.Same(t, &blankText[0], &rec.DescriptionEmbed[0], "blank description uses blank embedding")
		assert.Equal(t, core.SentimentNeutral, rec.DescriptionSentiment)
		assert.Equal(t, "good vibes", rec.ImgOCR)
		assert.Equal(t, core.SentimentPositive, rec.ImgTextSentiment)
	}
	assert.Equal(t, core.SentimentPositive, recs[0].NameSentiment)
	assert.Equal(t, core.SentimentNegative, recs[1].NameSentiment)
	assert.Equal(t, core.SentimentNeutral, recs[2].NameSentiment)
	assert.Equal(t, blankText, recs[2].NameEmbed)

	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, 0}, recs[0].Financial, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, 1, 0, 0}, recs[1].Financial, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, 0.5, 0, 0}, recs[2].Financial, 1e-12)

	assert.Equal(t, 1.0, recs[1].TimeWeight)
	assert.InDelta(t, math.Exp(-0.001*10), recs[0].TimeWeight, 1e-12)
	assert.InDelta(t, math.Exp(-0.001*70), recs[2].TimeWeight, 1e-12)
	assert.Len(t, img.seen, 3)
}

func TestPreprocessBatch_Errors(t *testing.T) {
	missingCreated := coin("a", "", 1)
	delete(missingCreated, "createdAt")
	missingCap := coin("b", "2025-04-10 12:00:00", 1)
	delete(missingCap, "marketCap")

	tests := []struct {
		name  string
		batch []core.RawRecord
	}{
		{"empty", nil},
		{"null record", []core.RawRecord{nil}},
		{"missing createdAt", []core.RawRecord{missingCreated}},
		{"missing marketCap", []core.RawRecord{coin("a", "2025-04-10 12:00:00", 1), missingCap}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewPreprocessor(&fakeText{}, &fakeImage{}).PreprocessBatch(context.Background(), tt.batch)
			require.Error(t, err)
			assert.True(t, core.IsDataError(err))
		})
	}
}

func TestPreprocessBatch_TextFailureFailsRequest(t *testing.T) {
	p := NewPreprocessor(&fakeText{failOn: "boom"}, &fakeImage{})
	batch := []core.RawRecord{
		coin("fine", "2025-04-10 12:00:00", 1),
		coin("boom", "2025-04-10 12:00:00", 2),
	}
	_, _, err := p.PreprocessBatch(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, core.IsDataError(err))
	assert.Contains(t, err.Error(), "coin_data[1]")
}

func TestPreprocessBatch_DegradedImageContinues(t *testing.T) {
	rec := coin("x", "2025-04-10 12:00:00", 1)
	rec["mediaPreviewUrl"] = "http://bad"
	recs, _, err := NewPreprocessor(&fakeText{}, &fakeImage{}).PreprocessBatch(context.Background(), []core.RawRecord{rec})
	require.NoError(t, err)
	assert.True(t, recs[0].ImageDegraded)
	assert.Equal(t, []float64{1, 0}, recs[0].ImgEmbed)
}

func TestPreprocessBatch_BoundedPool(t *testing.T) {
	text := &fakeText{delay: 5 * time.Millisecond}
	p := NewPreprocessor(text, &fakeImage{})
	p.Workers = 2

	batch := make([]core.RawRecord, 8)
	for i := range batch {
		batch[i] = coin("c", "2025-04-10 12:00:00", float64(i))
	}
	_, _, err := p.PreprocessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.LessOrEqual(t, text.peak.Load(), int32(2))
}

func TestPreprocessSingle(t *testing.T) {
	p := NewPreprocessor(&fakeText{}, &fakeImage{})
	batch := []core.RawRecord{
		coin("a", "2025-04-10 12:00:00", 100),
		coin("b", "2025-04-10 12:00:00", 200),
	}
	recs, scaler, err := p.PreprocessBatch(context.Background(), batch)
	require.NoError(t, err)

	// 参考记录使用 previewImageUrl，且 marketCap 超出批次范围
	ref := core.RawRecord{
		"name":            "a",
		"previewImageUrl": "http://img/a",
		"totalVolume":     10.0,
		"volume24h":       5.0,
		"marketCap":       300.0,
		"uniqueHolders":   3.0,
		"transferCount":   7.0,
	}
	got, err := p.PreprocessSingle(context.Background(), ref, scaler)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.InDeltaSlice(t, []float64{0, 0, 2, 0, 0}, got.Financial, 1e-12)
	assert.Zero(t, got.TimeWeight)

	// 同一输入在单条与批量路径上派生结果一致
	assert.Equal(t, recs[0].NameEmbed, got.NameEmbed)
	assert.Equal(t, recs[0].DescriptionEmbed, got.DescriptionEmbed)
	assert.Equal(t, recs[0].ImgEmbed, got.ImgEmbed)

	_, err = p.PreprocessSingle(context.Background(), core.RawRecord{"name": "x"}, scaler)
	assert.True(t, core.IsDataError(err))

	_, err = p.PreprocessSingle(context.Background(), nil, scaler)
	assert.True(t, core.IsDataError(err))
}

func TestPreprocessBatch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := &cancelImage{}
	_, _, err := NewPreprocessor(&fakeText{}, img).PreprocessBatch(ctx, []core.RawRecord{coin("a", "2025-04-10 12:00:00", 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

type cancelImage struct{}

func (cancelImage) Enrich(ctx context.Context, _ string) (enrich.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return enrich.ImageResult{}, err
	}
	return enrich.ImageResult{}, errors.New("unexpected")
}

func TestTimeWeights(t *testing.T) {
	base := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(-time.Hour),
		base,
		base.Add(-time.Minute),
		base.Add(-24 * 365 * time.Hour),
	}
	w := TimeWeights(times, 0.001)

	assert.Equal(t, 1.0, w[1])
	assert.InDelta(t, math.Exp(-3.6), w[0], 1e-12)
	assert.InDelta(t, math.Exp(-0.06), w[2], 1e-12)
	assert.Greater(t, w[2], w[0])
	for _, v := range w {
		assert.Greater(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, math.SmallestNonzeroFloat64, w[3], "underflow clamped above zero")

	assert.Nil(t, TimeWeights(nil, 0.001))
	assert.Equal(t, []float64{1, 1}, TimeWeights([]time.Time{base, base}, 0.001))
}

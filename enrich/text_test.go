package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

func TestSentimentFromLabel(t *testing.T) {
	tests := []struct {
		label string
		want  core.Sentiment
	}{
		{"LABEL_2", 1},
		{"LABEL_1", 0},
		{"LABEL_0", -1},
		{"positive", -1},
		{"", -1},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, SentimentFromLabel(tt.label))
		})
	}
}

func TestTextEnricher_Enrich(t *testing.T) {
	embedder := &hashEmbedder{}
	classifier := &labelClassifier{labels: map[string]string{
		"to the moon": core.LabelPositive,
		"rug pull":    core.LabelNegative,
	}}
	e := NewTextEnricher(embedder, classifier)
	ctx := context.Background()

	s, vec, err := e.Enrich(ctx, "to the moon")
	require.NoError(t, err)
	assert.Equal(t, core.SentimentPositive, s)
	assert.Len(t, vec, 4)

	s, _, err = e.Enrich(ctx, "rug pull")
	require.NoError(t, err)
	assert.Equal(t, core.SentimentNegative, s)

	s, _, err = e.Enrich(ctx, "just a coin")
	require.NoError(t, err)
	assert.Equal(t, core.SentimentNeutral, s)
}

func TestTextEnricher_BlankComputedOnce(t *testing.T) {
	embedder := &hashEmbedder{}
	classifier := &labelClassifier{}
	e := NewTextEnricher(embedder, classifier)
	ctx := context.Background()

	s1, v1, err := e.Enrich(ctx, "")
	require.NoError(t, err)
	s2, v2, err := e.Enrich(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, core.SentimentNeutral, s1)
	assert.Equal(t, core.SentimentNeutral, s2)
	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, embedder.calls.Load(), "blank embedding computed once")
	assert.EqualValues(t, 0, classifier.calls.Load(), "classifier not called for blank text")

	direct, err := embedder.EmbedText(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, direct, v1)
}

func TestTextEnricher_BlankFailureNotCached(t *testing.T) {
	embedder := &hashEmbedder{err: errors.New("model loading")}
	e := NewTextEnricher(embedder, &labelClassifier{})

	_, _, err := e.Enrich(context.Background(), "")
	require.Error(t, err)
	assert.True(t, core.IsDataError(err))

	embedder.err = nil
	_, vec, err := e.Enrich(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestTextEnricher_CapabilityFailureIsDataError(t *testing.T) {
	base := errors.New("503 from inference server")

	e := NewTextEnricher(&hashEmbedder{}, &labelClassifier{err: base})
	_, _, err := e.Enrich(context.Background(), "hello")
	assert.True(t, core.IsDataError(err))
	assert.ErrorIs(t, err, base)

	e = NewTextEnricher(&hashEmbedder{err: base}, &labelClassifier{})
	_, _, err = e.Enrich(context.Background(), "hello")
	assert.True(t, core.IsDataError(err))
}

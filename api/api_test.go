package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/enrich"
	"github.com/siddharth-shringarpure/CloutChain/model"
	"github.com/siddharth-shringarpure/CloutChain/observability"
	"github.com/siddharth-shringarpure/CloutChain/preprocess"
	"github.com/siddharth-shringarpure/CloutChain/scoring"
	"github.com/siddharth-shringarpure/CloutChain/service"
	"github.com/siddharth-shringarpure/CloutChain/similarity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type meanEmbedder struct{}

func (meanEmbedder) EmbedImage(_ context.Context, data []byte) ([]float64, error) {
	return []float64{float64(len(data)%13 + 1), 1}, nil
}

type noOCR struct{}

func (noOCR) ReadText(context.Context, []byte) ([]core.OCRSpan, error) {
	return nil, nil
}

// newTestServer 组装真实的打分链路：本地文本模型、HTTP 图片下载、假的图片 embedding
func newTestServer(t *testing.T) (*httptest.Server, *observability.Metrics, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetrics("test")

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(enrich.Placeholder())
	}))
	t.Cleanup(images.Close)

	w2v := model.NewWord2VecModel(map[string][]float64{
		"great":   {1, 0, 0},
		"project": {0, 1, 0},
		"scam":    {0, 0, 1},
	}, 3)
	text := enrich.NewTextEnricher(w2v, model.NewLexiconSentiment(nil, nil))
	image := enrich.NewImageEnricher(service.NewHTTPFetcher(service.FetchConfig{Timeout: 2}), meanEmbedder{}, noOCR{}).
		WithLogger(logger).
		WithDegradeRecorder(metrics)
	p := preprocess.NewPreprocessor(text, image)
	p.Logger = logger
	scorer := scoring.NewScorer(p).WithMetrics(metrics).WithLogger(logger)

	router := NewRouter(&Config{
		Handler: NewHandler(scorer, nil, logger),
		Metrics: metrics,
		Logger:  logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, metrics, images.URL
}

// unreachableURL 返回一个已关闭端口的地址
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url + "/gone.png"
}

func postPredict(t *testing.T, srv *httptest.Server, body any) map[string]any {
	t.Helper()
	var payload string
	switch b := body.(type) {
	case string:
		payload = b
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		payload = string(data)
	}
	resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func coin(name, createdAt, image string, marketCap float64) map[string]any {
	return map[string]any{
		"name":            name,
		"description":     "",
		"previewImageUrl": image,
		"totalVolume":     10.0,
		"volume24h":       5.0,
		"marketCap":       marketCap,
		"uniqueHolders":   3.0,
		"transferCount":   7.0,
		"createdAt":       createdAt,
	}
}

func examplePost() map[string]any {
	return map[string]any{
		"name":          "great project",
		"description":   "",
		"totalVolume":   10.0,
		"volume24h":     5.0,
		"marketCap":     100.0,
		"uniqueHolders": 3.0,
		"transferCount": 7.0,
	}
}

var scoreKeys = []string{
	"weighted_sentiment_similarity",
	"weighted_embed_similarity",
	"weighted_financial_similarity",
	"weighted_total_similarity",
}

func TestPredict_Success(t *testing.T) {
	srv, _, _ := newTestServer(t)
	out := postPredict(t, srv, map[string]any{
		"coin_data": []any{
			coin("great project", "2025-04-10T12:00:00Z", "", 100),
			coin("scam", "2025-04-10T11:00:00Z", "", 200),
		},
		"example_post": examplePost(),
	})

	assert.NotContains(t, out, "error")
	for _, k := range scoreKeys {
		v, ok := out[k].(float64)
		assert.True(t, ok, "missing %s", k)
		assert.LessOrEqual(t, v, 1.0+1e-9)
	}
}

func TestPredict_UnreachableImageDegrades(t *testing.T) {
	srv, metrics, imageBase := newTestServer(t)
	out := postPredict(t, srv, map[string]any{
		"coin_data": []any{
			coin("great project", "2025-04-10T12:00:00Z", imageBase+"/ok.png", 100),
			coin("scam", "2025-04-10T11:00:00Z", unreachableURL(t), 200),
			coin("great", "2025-04-10T11:30:00Z", imageBase+"/ok2.png", 150),
		},
		"example_post": examplePost(),
	})

	assert.NotContains(t, out, "error")
	for _, k := range scoreKeys {
		_, ok := out[k].(float64)
		assert.True(t, ok, "missing %s", k)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ImageDegradations.WithLabelValues(enrich.StageFetch)))
}

func TestPredict_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	missingCap := coin("great project", "2025-04-10T12:00:00Z", "", 100)
	delete(missingCap, "marketCap")

	tests := []struct {
		name string
		body any
	}{
		{"missing marketCap", map[string]any{
			"coin_data":    []any{coin("a", "2025-04-10T12:00:00Z", "", 1), missingCap},
			"example_post": examplePost(),
		}},
		{"empty coin_data", map[string]any{"coin_data": []any{}, "example_post": examplePost()}},
		{"null example_post", map[string]any{"coin_data": []any{coin("a", "2025-04-10T12:00:00Z", "", 1)}}},
		{"malformed json", `{"coin_data": [`},
		{"wrong type", `{"coin_data": "nope", "example_post": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := postPredict(t, srv, tt.body)
			assert.Contains(t, out, "error")
			for _, k := range scoreKeys {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestPredict_ExtrapolatedReference(t *testing.T) {
	srv, _, _ := newTestServer(t)
	batch := func() []any {
		a := coin("great project", "2025-04-10T12:00:00Z", "", 100)
		b := coin("scam", "2025-04-10T11:00:00Z", "", 200)
		a["totalVolume"] = 1.0
		b["totalVolume"] = 1.0000000001
		return []any{a, b}
	}

	tests := []struct {
		name      string
		volume    float64
		wantError bool
	}{
		{"large but finite", 1e295, false},
		{"overflows scale", 1e300, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := examplePost()
			post["totalVolume"] = tt.volume
			out := postPredict(t, srv, map[string]any{"coin_data": batch(), "example_post": post})
			if tt.wantError {
				assert.Contains(t, out, "error")
				return
			}
			assert.NotContains(t, out, "error")
			for _, k := range scoreKeys {
				_, ok := out[k].(float64)
				assert.True(t, ok, "missing %s", k)
			}
		})
	}
}

type panicScorer struct{}

func (panicScorer) Score(context.Context, *scoring.Request) (*similarity.Result, error) {
	panic("boom")
}

func TestPredict_PanicRecovered(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := NewRouter(&Config{Handler: NewHandler(panicScorer{}, nil, logger), Logger: logger})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"coin_data": [{}], "example_post": {}}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Contains(t, out["error"], "boom")
	require.NotNil(t, hook.LastEntry())
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tests := []struct {
		name   string
		health core.HealthChecker
		want   int
	}{
		{"no checker", nil, http.StatusOK},
		{"healthy", fakeHealth{}, http.StatusOK},
		{"unhealthy", fakeHealth{err: errors.New("ocr: connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&Config{Handler: NewHandler(panicScorer{}, tt.health, logger), Logger: logger})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := NewRouter(&Config{Handler: NewHandler(panicScorer{}, nil, logger), Logger: logger})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestNoRoute(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := NewRouter(&Config{Handler: NewHandler(panicScorer{}, nil, logger), Logger: logger})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

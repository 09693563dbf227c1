package enrich

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// hashEmbedder 按文本哈希生成确定性的 4 维向量
type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (h *hashEmbedder) EmbedText(_ context.Context, text string) ([]float64, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	f := fnv.New64a()
	_, _ = f.Write([]byte(text))
	sum := f.Sum64()
	return []float64{
		float64(sum&0xff) + 1,
		float64((sum>>8)&0xff) + 1,
		float64((sum>>16)&0xff) + 1,
		float64((sum>>24)&0xff) + 1,
	}, nil
}

type labelClassifier struct {
	labels map[string]string
	calls  atomic.Int32
	err    error
}

func (c *labelClassifier) ClassifySentiment(_ context.Context, text string) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	if label, ok := c.labels[text]; ok {
		return label, nil
	}
	return core.LabelNeutral, nil
}

type mapFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

func newMapFetcher(data map[string][]byte) *mapFetcher {
	return &mapFetcher{data: data, calls: map[string]int{}}
}

func (f *mapFetcher) FetchBytes(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	data, ok := f.data[url]
	if !ok {
		return nil, core.NewFetchError(core.ModuleService, "fetch "+url, errors.New("status 404"))
	}
	return data, nil
}

func (f *mapFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// sizeEmbedder 以图片字节长度和首字节生成向量（未归一化）
type sizeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (s *sizeEmbedder) EmbedImage(_ context.Context, data []byte) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []float64{float64(len(data)), float64(data[len(data)/2]) + 1, 3}, nil
}

type fixedOCR struct {
	spans []core.OCRSpan
	err   error
}

func (o *fixedOCR) ReadText(context.Context, []byte) ([]core.OCRSpan, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.spans, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (r *countingRecorder) ImageDegraded(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func solidPNG(c color.Color, size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

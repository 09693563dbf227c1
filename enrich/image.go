package enrich

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"

	// 注册解码器：png/jpeg/gif 来自标准库，webp 来自 x/image
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/feature"
)

// 图片链路的降级阶段
const (
	StageFetch  = "fetch"
	StageDecode = "decode"
	StageEmbed  = "embed"
	StageOCR    = "ocr"
)

// DegradeRecorder 记录图片降级事件（如 Prometheus 计数器）
type DegradeRecorder interface {
	ImageDegraded(stage string)
}

// ImageResult 是一条记录的图片派生结果
type ImageResult struct {
	// Embedding L2 归一化后的图片 embedding
	Embedding []float64

	// OCRText 高置信度 OCR 文本，按阅读顺序以单个空格连接
	OCRText string

	// Degraded 为 true 表示图片链路失败，结果为空白图片
	Degraded bool

	// Stage 降级发生的阶段（fetch/decode/embed/ocr），未降级时为空
	Stage string
}

// ImageEnricher 为图片 URL 派生 embedding 和 OCR 文本。
//
// 每条记录只下载一次图片，同一份字节同时用于 embedding 和 OCR。
// 下载失败、非 200、无法解码或推理能力异常时，该记录降级为空白图片的结果，记录 Warn 日志后继续；
// 只有请求被取消或空白图片本身无法编码时才返回错误。
type ImageEnricher struct {
	fetcher  core.Fetcher
	embedder core.ImageEmbedder
	ocr      core.OCRReader

	minConfidence float64
	blankURL      string
	logger        logrus.FieldLogger
	recorder      DegradeRecorder

	mu    sync.Mutex
	blank []float64
}

// NewImageEnricher 创建图片特征派生器
func NewImageEnricher(fetcher core.Fetcher, embedder core.ImageEmbedder, ocr core.OCRReader) *ImageEnricher {
	return &ImageEnricher{
		fetcher:       fetcher,
		embedder:      embedder,
		ocr:           ocr,
		minConfidence: core.DefaultOCRConfidence,
		logger:        logrus.StandardLogger(),
	}
}

// WithMinConfidence 设置 OCR 文本保留阈值（严格大于）
func (e *ImageEnricher) WithMinConfidence(threshold float64) *ImageEnricher {
	e.minConfidence = threshold
	return e
}

// WithBlankImageURL 设置空白图片的 URL；为空或下载失败时使用内置占位图
func (e *ImageEnricher) WithBlankImageURL(url string) *ImageEnricher {
	e.blankURL = url
	return e
}

// WithLogger 设置日志
func (e *ImageEnricher) WithLogger(logger logrus.FieldLogger) *ImageEnricher {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithDegradeRecorder 设置降级事件记录器
func (e *ImageEnricher) WithDegradeRecorder(recorder DegradeRecorder) *ImageEnricher {
	e.recorder = recorder
	return e
}

// Enrich 返回图片 URL 的 embedding 和 OCR 文本
func (e *ImageEnricher) Enrich(ctx context.Context, url string) (ImageResult, error) {
	if core.IsBlankURL(url) {
		return e.blankResult(ctx)
	}

	data, err := e.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return e.degrade(ctx, url, StageFetch, err)
	}

	if err := checkDecodable(data); err != nil {
		return e.degrade(ctx, url, StageDecode, err)
	}

	vec, err := e.embedder.EmbedImage(ctx, data)
	if err == nil && len(vec) == 0 {
		err = errors.New("empty image embedding")
	}
	if err != nil {
		return e.degrade(ctx, url, StageEmbed, core.NewCapabilityError(core.ModuleEnrich, "embed image", err))
	}

	spans, err := e.ocr.ReadText(ctx, data)
	if err != nil {
		return e.degrade(ctx, url, StageOCR, core.NewCapabilityError(core.ModuleEnrich, "read text", err))
	}

	return ImageResult{
		Embedding: feature.NormalizeL2(vec),
		OCRText:   JoinOCR(spans, e.minConfidence),
	}, nil
}

// BlankEmbedding 返回空白图片的 embedding（已 L2 归一化）。
// 计算成功后缓存；失败不缓存。
func (e *ImageEnricher) BlankEmbedding(ctx context.Context) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.blank != nil {
		return e.blank, nil
	}

	vec, err := e.embedder.EmbedImage(ctx, e.blankImage(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapDomainError(core.ModuleEnrich, core.ErrorCodeData, "embed blank image", err)
	}
	if len(vec) == 0 {
		return nil, core.NewDataError(core.ModuleEnrich, "embed blank image: empty embedding")
	}
	e.blank = feature.NormalizeL2(vec)
	return e.blank, nil
}

// blankImage 返回空白图片字节：优先下载配置的 URL，失败时回退到内置占位图
func (e *ImageEnricher) blankImage(ctx context.Context) []byte {
	if e.blankURL == "" {
		return Placeholder()
	}
	data, err := e.fetcher.FetchBytes(ctx, e.blankURL)
	if err == nil {
		err = checkDecodable(data)
	}
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"url":   e.blankURL,
			"error": err,
		}).Warn("blank image unavailable, using built-in placeholder")
		return Placeholder()
	}
	return data
}

func (e *ImageEnricher) blankResult(ctx context.Context) (ImageResult, error) {
	vec, err := e.BlankEmbedding(ctx)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{Embedding: vec}, nil
}

func (e *ImageEnricher) degrade(ctx context.Context, url, stage string, cause error) (ImageResult, error) {
	// 请求已取消时不降级，直接结束
	if ctx.Err() != nil {
		return ImageResult{}, ctx.Err()
	}

	e.logger.WithFields(logrus.Fields{
		"url":   url,
		"stage": stage,
		"error": cause,
	}).Warn("image enrichment failed, using blank image")
	if e.recorder != nil {
		e.recorder.ImageDegraded(stage)
	}

	res, err := e.blankResult(ctx)
	if err != nil {
		return ImageResult{}, err
	}
	res.Degraded = true
	res.Stage = stage
	return res, nil
}

// checkDecodable 只解析图片头，确认格式可被解码
func checkDecodable(data []byte) error {
	if len(data) == 0 {
		return core.NewFetchError(core.ModuleEnrich, "decode image", errors.New("empty body"))
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return core.NewFetchError(core.ModuleEnrich, "decode image", err)
	}
	return nil
}

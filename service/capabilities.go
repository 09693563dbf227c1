package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/pkg/conv"
)

// TextEmbeddingClient 通过 TorchServe 调用 feature-extraction 模型。
//
// 请求体：{"inputs": "<text>"}
// 响应：HuggingFace feature-extraction 的嵌套数组 [[[token0...], [token1...]]]，
// 取第一个 token（CLS）的向量；也接受一维数组或 {"embedding": [...]}。
type TextEmbeddingClient struct {
	*TorchServeClient
}

// NewTextEmbeddingClient 创建文本 embedding 客户端
func NewTextEmbeddingClient(client *TorchServeClient) *TextEmbeddingClient {
	return &TextEmbeddingClient{TorchServeClient: client}
}

// EmbedText 实现 core.TextEmbedder
func (c *TextEmbeddingClient) EmbedText(ctx context.Context, text string) ([]float64, error) {
	body, err := c.PredictJSON(ctx, map[string]any{"inputs": text})
	if err != nil {
		return nil, err
	}
	return parseEmbedding(body)
}

// SentimentClient 通过 TorchServe 调用三分类 text-classification 模型。
//
// 响应：[{"label": "LABEL_2", "score": 0.93}]、[[{...}]] 或 {"label": ...}，取第一个标签。
type SentimentClient struct {
	*TorchServeClient
}

// NewSentimentClient 创建情感分类客户端
func NewSentimentClient(client *TorchServeClient) *SentimentClient {
	return &SentimentClient{TorchServeClient: client}
}

// ClassifySentiment 实现 core.SentimentClassifier
func (c *SentimentClient) ClassifySentiment(ctx context.Context, text string) (string, error) {
	body, err := c.PredictJSON(ctx, map[string]any{"inputs": text})
	if err != nil {
		return "", err
	}
	return parseLabel(body)
}

// ImageEmbeddingClient 通过 TorchServe 调用图片编码模型（如 CLIP image features），请求体为图片原始字节。
// 返回的向量未归一化。
type ImageEmbeddingClient struct {
	*TorchServeClient
}

// NewImageEmbeddingClient 创建图片 embedding 客户端
func NewImageEmbeddingClient(client *TorchServeClient) *ImageEmbeddingClient {
	return &ImageEmbeddingClient{TorchServeClient: client}
}

// EmbedImage 实现 core.ImageEmbedder
func (c *ImageEmbeddingClient) EmbedImage(ctx context.Context, image []byte) ([]float64, error) {
	body, err := c.PredictBytes(ctx, image)
	if err != nil {
		return nil, err
	}
	return parseEmbedding(body)
}

// OCRClient 通过 TorchServe 调用 OCR 模型，请求体为图片原始字节。
//
// 响应支持两种格式：
//   - 对象数组：[{"box": [[x, y], ...], "text": "...", "confidence": 0.9}]
//   - EasyOCR readtext 元组：[[box, "text", 0.9], ...]
type OCRClient struct {
	*TorchServeClient
}

// NewOCRClient 创建 OCR 客户端
func NewOCRClient(client *TorchServeClient) *OCRClient {
	return &OCRClient{TorchServeClient: client}
}

// ReadText 实现 core.OCRReader
func (c *OCRClient) ReadText(ctx context.Context, image []byte) ([]core.OCRSpan, error) {
	body, err := c.PredictBytes(ctx, image)
	if err != nil {
		return nil, err
	}
	return parseOCR(body)
}

var (
	_ core.TextEmbedder        = (*TextEmbeddingClient)(nil)
	_ core.SentimentClassifier = (*SentimentClient)(nil)
	_ core.ImageEmbedder       = (*ImageEmbeddingClient)(nil)
	_ core.OCRReader           = (*OCRClient)(nil)
	_ core.HealthChecker       = (*TorchServeClient)(nil)
)

func parseError(what string, body []byte, err error) error {
	return core.NewCapabilityError(core.ModuleService, fmt.Sprintf("unable to parse %s response: %s", what, truncate(string(body), 128)), err)
}

// parseEmbedding 解析向量响应，嵌套数组逐层取第一个元素直到得到数值数组。
// 对象响应从 embedding / embeddings / predictions（KServe V1）中取值。
func parseEmbedding(body []byte) ([]float64, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseError("embedding", body, err)
	}
	if obj, ok := raw.(map[string]any); ok {
		var (
			v     any
			found bool
		)
		for _, key := range []string{"embedding", "embeddings", "predictions"} {
			if v, found = obj[key]; found {
				break
			}
		}
		if !found {
			return nil, parseError("embedding", body, errors.New("missing embedding key"))
		}
		raw = v
	}
	for {
		arr, ok := raw.([]any)
		if !ok || len(arr) == 0 {
			return nil, parseError("embedding", body, errors.New("empty or non-array embedding"))
		}
		if _, nested := arr[0].([]any); nested {
			raw = arr[0]
			continue
		}
		vec, ok := conv.ToFloat64Slice(arr)
		if !ok {
			return nil, parseError("embedding", body, errors.New("non-numeric embedding element"))
		}
		return vec, nil
	}
}

// parseLabel 解析分类响应中的第一个标签
func parseLabel(body []byte) (string, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", parseError("sentiment", body, err)
	}
	for {
		switch v := raw.(type) {
		case []any:
			if len(v) == 0 {
				return "", parseError("sentiment", body, errors.New("empty result"))
			}
			raw = v[0]
		case map[string]any:
			if label, ok := conv.ToString(v["label"]); ok && label != "" {
				return label, nil
			}
			return "", parseError("sentiment", body, errors.New("missing label"))
		case string:
			return v, nil
		default:
			return "", parseError("sentiment", body, fmt.Errorf("unexpected %T", raw))
		}
	}
}

// parseOCR 解析 OCR 响应，保持服务返回的阅读顺序
func parseOCR(body []byte) ([]core.OCRSpan, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, parseError("ocr", body, err)
	}
	spans := make([]core.OCRSpan, 0, len(items))
	for i, item := range items {
		var span core.OCRSpan
		if err := json.Unmarshal(item, &span); err == nil {
			spans = append(spans, span)
			continue
		}

		var tuple []any
		if err := json.Unmarshal(item, &tuple); err != nil || len(tuple) < 3 {
			return nil, parseError("ocr", body, fmt.Errorf("item %d is neither an object nor a [box, text, confidence] tuple", i))
		}
		text, ok := conv.ToString(tuple[1])
		if !ok {
			return nil, parseError("ocr", body, fmt.Errorf("item %d: text is not a string", i))
		}
		confidence, ok := conv.ToFloat64(tuple[2])
		if !ok {
			return nil, parseError("ocr", body, fmt.Errorf("item %d: confidence is not a number", i))
		}
		span = core.OCRSpan{Text: text, Confidence: confidence}
		if points, ok := tuple[0].([]any); ok {
			for _, p := range points {
				if xy, ok := conv.ToFloat64Slice(p); ok {
					span.Box = append(span.Box, xy)
				}
			}
		}
		spans = append(spans, span)
	}
	return spans, nil
}

package core

import "context"

// 推理能力的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service / model）实现
//   - 预训练模型（文本 embedding、情感分类、图片 embedding、OCR）视为黑盒，
//     启动时构造一次，通过依赖注入传入 enrich 组件
//   - 实现必须是无状态、并发安全的；调用可能较慢（秒级）
//
// 实现：
//   - service.TextEmbeddingClient / SentimentClient / ImageEmbeddingClient / OCRClient（远程 TorchServe）
//   - model.Word2VecModel / model.LexiconSentiment（本地，离线使用）
//   - service.HTTPFetcher（图片下载）

// TextEmbedder 把文本编码为固定维度的向量，维度由实现决定。
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// SentimentClassifier 是三分类情感分类器，返回原始标签（如 "LABEL_2"）。
// 标签到 {-1, 0, 1} 的映射由 enrich.SentimentFromLabel 负责。
type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (string, error)
}

// ImageEmbedder 把图片字节编码为向量。调用方负责 L2 归一化。
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float64, error)
}

// OCRSpan 是 OCR 识别出的一段文本。
type OCRSpan struct {
	// Box 文本区域的多边形顶点（[[x, y], ...]）
	Box [][]float64 `json:"box,omitempty"`

	// Text 识别出的文本
	Text string `json:"text"`

	// Confidence 置信度，范围 [0, 1]
	Confidence float64 `json:"confidence"`
}

// OCRReader 从图片字节中识别文本，返回顺序即阅读顺序。
type OCRReader interface {
	ReadText(ctx context.Context, image []byte) ([]OCRSpan, error)
}

// Fetcher 按 URL 获取字节。超时、非 200 等失败以 FETCH_ERROR 返回，由调用方处理。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// HealthChecker 是可选接口：支持健康检查的能力实现可以实现它。
type HealthChecker interface {
	Health(ctx context.Context) error
}

package core

import "time"

// 打分链路的默认参数。
const (
	// DefaultSentimentWeight 情感一致性权重（作用于三个通道的分数之和）
	DefaultSentimentWeight = 0.15

	// DefaultEmbedWeight embedding 相似度权重（作用于四个通道的余弦之和）
	DefaultEmbedWeight = 0.10

	// DefaultFinancialWeight 金融相似度权重
	DefaultFinancialWeight = 0.15

	// DefaultDecayRate 时间衰减系数（每秒）
	DefaultDecayRate = 0.001

	// DefaultOCRConfidence OCR 文本保留阈值（严格大于）
	DefaultOCRConfidence = 0.5

	// DefaultWorkers 行级特征派生的并发数
	DefaultWorkers = 8

	// DefaultFetchTimeout 单张图片下载超时
	DefaultFetchTimeout = 10 * time.Second

	// DefaultCapabilityTimeout 单次远程推理超时
	DefaultCapabilityTimeout = 30 * time.Second

	// DefaultMaxImageBytes 单张图片最大字节数
	DefaultMaxImageBytes = 10 << 20
)

// 情感分类器的原始标签。
const (
	LabelNegative = "LABEL_0"
	LabelNeutral  = "LABEL_1"
	LabelPositive = "LABEL_2"
)

package model

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/siddharth-shringarpure/CloutChain/core"
	"github.com/siddharth-shringarpure/CloutChain/pkg/conv"
)

// Word2VecModel 是本地的 Word2Vec 词向量文本编码器，实现 core.TextEmbedder。
//
// 核心思想：
//   - 将文本中的词映射为稠密向量
//   - 通过词向量的平均或求和得到文本的向量表示
//   - 支持 OOV（Out-of-Vocabulary）处理
//
// 使用场景：
//   - 离线运行和测试，不依赖远程推理服务
//   - 远程 feature-extraction 模型不可用时的替代实现
//
// 没有任何有效词（包括空文本）时返回固定的单位向量，使空白文本之间的相似度为 1。
type Word2VecModel struct {
	// WordVectors 词向量表：word -> vector
	WordVectors map[string][]float64

	// Dimension 向量维度
	Dimension int

	// OOVVector OOV 词的默认向量，为 nil 时忽略 OOV 词
	OOVVector []float64

	// AggregationMethod 聚合方法：mean（平均）或 sum（求和）
	AggregationMethod string
}

// NewWord2VecModel 创建一个新的 Word2Vec 模型。
func NewWord2VecModel(wordVectors map[string][]float64, dimension int) *Word2VecModel {
	if dimension <= 0 && len(wordVectors) > 0 {
		// 从第一个向量推断维度
		for _, vec := range wordVectors {
			dimension = len(vec)
			break
		}
	}

	return &Word2VecModel{
		WordVectors:       wordVectors,
		Dimension:         dimension,
		AggregationMethod: "mean",
	}
}

// WithOOVVector 设置 OOV 词的默认向量。
func (m *Word2VecModel) WithOOVVector(oovVector []float64) *Word2VecModel {
	m.OOVVector = oovVector
	return m
}

// WithAggregationMethod 设置聚合方法：mean（平均）或 sum（求和）。
func (m *Word2VecModel) WithAggregationMethod(method string) *Word2VecModel {
	m.AggregationMethod = method
	return m
}

// GetWordVector 获取单个词的向量，不存在时返回 OOVVector（可能为 nil）。
func (m *Word2VecModel) GetWordVector(word string) []float64 {
	if vec, ok := m.WordVectors[word]; ok {
		return vec
	}
	return m.OOVVector
}

// Tokenize 把文本切分为小写词，字母和数字以外的字符都视为分隔符。
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// EncodeText 将文本编码为向量（通过词向量的聚合）。
func (m *Word2VecModel) EncodeText(text string) []float64 {
	return m.EncodeWords(Tokenize(text))
}

// EncodeWords 将词列表编码为向量（通过词向量的聚合）。
func (m *Word2VecModel) EncodeWords(words []string) []float64 {
	aggregated := make([]float64, m.Dimension)
	validCount := 0

	for _, word := range words {
		vec := m.GetWordVector(word)
		if len(vec) != m.Dimension {
			continue
		}
		validCount++
		for i := 0; i < m.Dimension; i++ {
			aggregated[i] += vec[i]
		}
	}

	if validCount == 0 {
		return m.emptyVector()
	}

	switch m.AggregationMethod {
	case "sum":
		return aggregated
	case "mean":
		fallthrough
	default:
		for i := 0; i < m.Dimension; i++ {
			aggregated[i] /= float64(validCount)
		}
		return aggregated
	}
}

func (m *Word2VecModel) emptyVector() []float64 {
	vec := make([]float64, m.Dimension)
	if m.Dimension == 0 {
		return vec
	}
	v := 1 / math.Sqrt(float64(m.Dimension))
	for i := range vec {
		vec[i] = v
	}
	return vec
}

// EmbedText 实现 core.TextEmbedder
func (m *Word2VecModel) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Dimension <= 0 {
		return nil, core.NewCapabilityError(core.ModuleService, "word2vec", fmt.Errorf("model has no vectors"))
	}
	return m.EncodeText(text), nil
}

// Name 返回模型名称。
func (m *Word2VecModel) Name() string {
	return "word2vec"
}

// LoadWord2VecFromMap 从 map 加载词向量（用于从 JSON/YAML 等格式加载）。
func LoadWord2VecFromMap(data map[string]any) (*Word2VecModel, error) {
	wordVectors := make(map[string][]float64)
	dimension := 0

	for word, raw := range data {
		vector, ok := conv.ToFloat64Slice(raw)
		if !ok || len(vector) == 0 {
			continue
		}
		if dimension == 0 {
			dimension = len(vector)
		} else if len(vector) != dimension {
			return nil, fmt.Errorf("inconsistent vector dimension: word %s has dimension %d, expected %d", word, len(vector), dimension)
		}
		wordVectors[strings.ToLower(word)] = vector
	}

	if dimension == 0 {
		return nil, fmt.Errorf("no valid vectors found")
	}

	return NewWord2VecModel(wordVectors, dimension), nil
}

// LoadWord2VecFromFile 从 JSON 或 YAML 文件加载词向量，格式为 {"word": [f1, f2, ...]}。
// JSON 是 YAML 的子集，两种格式都用 YAML 解析。
func LoadWord2VecFromFile(path string) (*Word2VecModel, error) {
	if path == "" {
		return nil, fmt.Errorf("word2vec: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return LoadWord2VecFromMap(raw)
}

var _ core.TextEmbedder = (*Word2VecModel)(nil)

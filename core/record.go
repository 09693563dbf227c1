package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/siddharth-shringarpure/CloutChain/pkg/conv"
)

// 原始记录字段名
const (
	FieldTotalVolume     = "totalVolume"
	FieldVolume24h       = "volume24h"
	FieldMarketCap       = "marketCap"
	FieldUniqueHolders   = "uniqueHolders"
	FieldTransferCount   = "transferCount"
	FieldName            = "name"
	FieldDescription     = "description"
	FieldPreviewImageURL = "previewImageUrl"
	FieldMediaPreviewURL = "mediaPreviewUrl"
	FieldCreatedAt       = "createdAt"
)

// FinancialColumns 是参与 Min-Max 归一化与金融相似度计算的列，顺序固定。
var FinancialColumns = []string{
	FieldTotalVolume,
	FieldVolume24h,
	FieldMarketCap,
	FieldUniqueHolders,
	FieldTransferCount,
}

// imageURLFields 按优先级排列的图片字段。
var imageURLFields = []string{FieldMediaPreviewURL, FieldPreviewImageURL}

// RawRecord 是一条候选 coin 或参考 post 的原始字段（JSON 对象）。
type RawRecord map[string]any

// Float 读取数值字段。字段缺失、为 null 或无法转换为数值时返回 false。
func (r RawRecord) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := conv.ToFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text 读取文本字段。blank 为 true 表示字段缺失或为空，应走空白值路径。
func (r RawRecord) Text(key string) (text string, blank bool) {
	v := r[key]
	if IsBlankText(v) {
		return "", true
	}
	if s, ok := v.(string); ok {
		return s, false
	}
	return fmt.Sprint(v), false
}

// ImageURL 返回第一个非空的图片字段（mediaPreviewUrl 优先，其次 previewImageUrl）。
func (r RawRecord) ImageURL() (url string, blank bool) {
	for _, key := range imageURLFields {
		v := r[key]
		if IsBlankURL(v) {
			continue
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s), false
		}
	}
	return "", true
}

// createdAtLayouts 覆盖 ISO8601 以及上游把 "T" 替换为空格后的格式。
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// EpochMillisCutoff 数值型 createdAt 的绝对值大于它时按 Unix 毫秒解析，否则按秒。
// 1e12 秒约为公元 33658 年，1e12 毫秒为 2001-09-09。
const EpochMillisCutoff = 1e12

// CreatedAt 解析创建时间。支持 ISO8601 字符串（无时区按 UTC）以及 Unix 秒/毫秒（见 EpochMillisCutoff）。
func (r RawRecord) CreatedAt() (time.Time, error) {
	v, ok := r[FieldCreatedAt]
	if !ok || v == nil {
		return time.Time{}, NewDataError(ModulePreprocess, "missing required field %q", FieldCreatedAt)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, NewDataError(ModulePreprocess, "missing required field %q", FieldCreatedAt)
		}
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	if f, ok := conv.ToFloat64(v); ok && !math.IsNaN(f) {
		if math.Abs(f) > EpochMillisCutoff {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	return time.Time{}, NewDataError(ModulePreprocess, "invalid %q value: %v", FieldCreatedAt, v)
}

// IsBlankText 判断文本字段是否为空白：缺失（nil）、空字符串或 NaN。
// 单条与批量预处理共用此判断。
func IsBlankText(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case float64:
		return math.IsNaN(val)
	case float32:
		return math.IsNaN(float64(val))
	default:
		return false
	}
}

// IsBlankURL 判断图片字段是否为空白。与 IsBlankText 相同，另外把纯空白字符串视为空，
// 非字符串值也视为空（无法作为 URL）。
func IsBlankURL(v any) bool {
	if IsBlankText(v) {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return true
	}
	return strings.TrimSpace(s) == ""
}

// Sentiment 取值 {-1, 0, 1}。0 同时表示中性和“无文本”，下游无法区分两者。
type Sentiment int

const (
	SentimentNegative Sentiment = -1
	SentimentNeutral  Sentiment = 0
	SentimentPositive Sentiment = 1
)

// EnrichedRecord 是完成特征派生的记录。
type EnrichedRecord struct {
	Raw RawRecord

	// Financial 是按 FinancialColumns 顺序归一化后的金融向量
	Financial []float64

	NameSentiment        Sentiment
	DescriptionSentiment Sentiment
	ImgTextSentiment     Sentiment

	NameEmbed        []float64
	DescriptionEmbed []float64
	ImgEmbed         []float64
	ImgTextEmbed     []float64

	// ImgOCR 是图片中识别出的高置信度文本，无图片或无文本时为空
	ImgOCR string

	// ImageDegraded 表示图片链路失败并降级为空白图片
	ImageDegraded bool

	// CreatedAt 与 TimeWeight 只对候选记录有效
	CreatedAt  time.Time
	TimeWeight float64
}

// Validate 校验派生字段是否齐全，缺失时返回 DATA_ERROR。
func (r *EnrichedRecord) Validate() error {
	if r == nil {
		return NewDataError(ModuleSimilarity, "enriched record is nil")
	}
	if len(r.Financial) != len(FinancialColumns) {
		return NewDataError(ModuleSimilarity, "financial vector has %d columns, want %d", len(r.Financial), len(FinancialColumns))
	}
	embeds := []struct {
		name string
		vec  []float64
	}{
		{"name_embed", r.NameEmbed},
		{"description_embed", r.DescriptionEmbed},
		{"img_embed", r.ImgEmbed},
		{"img_text_embed", r.ImgTextEmbed},
	}
	for _, e := range embeds {
		if len(e.vec) == 0 {
			return NewDataError(ModuleSimilarity, "missing enriched field %q", e.name)
		}
	}
	return nil
}

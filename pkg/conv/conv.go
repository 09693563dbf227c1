// Package conv 提供类型转换工具，用于处理 JSON/YAML 解析出的 any 值。
package conv

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、各类整数、json.Number 以及数值字符串（如 "1200.5"）。
// bool 和空字符串不视为数值。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToString 将 any 转为 string。
// 仅支持 string 类型，否则返回 ("", false)。
func ToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ToFloat64Slice 将 []any（JSON 数组）转为 []float64，任一元素不是数值时返回 false。
func ToFloat64Slice(v any) ([]float64, bool) {
	switch val := v.(type) {
	case []float64:
		return val, true
	case []any:
		out := make([]float64, len(val))
		for i, e := range val {
			f, ok := ToFloat64(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

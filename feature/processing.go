package feature

import (
	"fmt"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// MinMaxScaler Min-Max 归一化
// 公式: x' = (x - min) / (max - min)
// 特点: 将批次内的值缩放到 [0, 1] 区间
//
// 一次请求拟合一个 MinMaxScaler，参考记录必须用批次拟合出的参数变换，
// 不能单独拟合。拟合后只读，可以在多个 goroutine 中并发调用 Transform。
type MinMaxScaler struct {
	Columns []string           // 参与归一化的列，输出向量按此顺序
	Min     map[string]float64 // 列最小值
	Max     map[string]float64 // 列最大值
}

// NewMinMaxScaler 创建 Min-Max 归一化器，columns 为空时使用 core.FinancialColumns
func NewMinMaxScaler(columns ...string) *MinMaxScaler {
	if len(columns) == 0 {
		columns = core.FinancialColumns
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &MinMaxScaler{Columns: cols}
}

// Fit 在批次上计算每列的最小值和最大值。
// 批次为空、任一记录缺失某列或该列不是数值时返回 DATA_ERROR。
func (s *MinMaxScaler) Fit(records []core.RawRecord) error {
	if len(records) == 0 {
		return core.NewDataError(core.ModuleNormalizer, "cannot fit scaler on empty batch")
	}
	minVals := make(map[string]float64, len(s.Columns))
	maxVals := make(map[string]float64, len(s.Columns))
	for i, rec := range records {
		for _, col := range s.Columns {
			v, ok := rec.Float(col)
			if !ok {
				return core.NewDataError(core.ModuleNormalizer, "coin_data[%d]: missing or non-numeric financial field %q", i, col)
			}
			if i == 0 {
				minVals[col], maxVals[col] = v, v
				continue
			}
			if v < minVals[col] {
				minVals[col] = v
			}
			if v > maxVals[col] {
				maxVals[col] = v
			}
		}
	}
	s.Min, s.Max = minVals, maxVals
	return nil
}

// Fitted 返回是否已拟合
func (s *MinMaxScaler) Fitted() bool {
	return s != nil && s.Min != nil && s.Max != nil
}

// NormalizeValueWithKey 归一化单个值（指定列名）。
// 常量列（max == min）统一返回 0。
func (s *MinMaxScaler) NormalizeValueWithKey(key string, value float64) float64 {
	lo, hi := s.Min[key], s.Max[key]
	rangeVal := hi - lo
	if rangeVal > 0 {
		return (value - lo) / rangeVal
	}
	return 0
}

// Transform 用已拟合的参数把一条记录变换为金融向量。
// 参考记录的值可能超出批次范围，此时结果不在 [0, 1] 内，不做截断。
func (s *MinMaxScaler) Transform(rec core.RawRecord) ([]float64, error) {
	if !s.Fitted() {
		return nil, core.NewDomainError(core.ModuleNormalizer, core.ErrorCodeInvalidInput, "scaler is not fitted")
	}
	out := make([]float64, len(s.Columns))
	for i, col := range s.Columns {
		v, ok := rec.Float(col)
		if !ok {
			return nil, core.NewDataError(core.ModuleNormalizer, "missing or non-numeric financial field %q", col)
		}
		out[i] = s.NormalizeValueWithKey(col, v)
	}
	return out, nil
}

// FitAndScale 在批次上拟合一个新的 MinMaxScaler，并返回批次中每条记录的金融向量。
func FitAndScale(records []core.RawRecord, columns ...string) ([][]float64, *MinMaxScaler, error) {
	scaler := NewMinMaxScaler(columns...)
	if err := scaler.Fit(records); err != nil {
		return nil, nil, err
	}
	scaled := make([][]float64, len(records))
	for i, rec := range records {
		vec, err := scaler.Transform(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("coin_data[%d]: %w", i, err)
		}
		scaled[i] = vec
	}
	return scaled, scaler, nil
}

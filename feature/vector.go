package feature

import "math"

// Cosine 计算余弦相似度。
// 长度不一致、为空或任一向量范数为 0 时返回 0；任一分量为 NaN/Inf 时返回 NaN。
// 每个向量先按自身最大绝对值缩放再求范数，分量很大或很小时也不会溢出。
func Cosine(vec1, vec2 []float64) float64 {
	if len(vec1) != len(vec2) || len(vec1) == 0 {
		return 0
	}

	scale1, scale2 := maxAbs(vec1), maxAbs(vec2)
	if math.IsNaN(scale1) || math.IsNaN(scale2) || math.IsInf(scale1, 0) || math.IsInf(scale2, 0) {
		return math.NaN()
	}
	if scale1 == 0 || scale2 == 0 {
		return 0
	}

	var dot, norm1, norm2 float64
	for i := range vec1 {
		a, b := vec1[i]/scale1, vec2[i]/scale2
		dot += a * b
		norm1 += a * a
		norm2 += b * b
	}

	cos := dot / (math.Sqrt(norm1) * math.Sqrt(norm2))
	// 舍入误差可能让结果略超出 [-1, 1]
	return math.Max(-1, math.Min(1, cos))
}

// NormalizeL2 返回 L2 归一化后的副本，不修改入参。零向量原样复制返回。
func NormalizeL2(vector []float64) []float64 {
	out := make([]float64, len(vector))
	copy(out, vector)

	scale := maxAbs(out)
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return out
	}

	var sumSquares float64
	for i := range out {
		out[i] /= scale
		sumSquares += out[i] * out[i]
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range out {
		out[i] /= magnitude
	}
	return out
}

// maxAbs 返回最大绝对值，含 NaN 时返回 NaN
func maxAbs(vector []float64) float64 {
	var m float64
	for _, v := range vector {
		if math.IsNaN(v) {
			return v
		}
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

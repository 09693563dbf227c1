package enrich

import (
	"strings"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// JoinOCR 保留置信度严格大于 threshold 的非空文本，按阅读顺序以单个空格连接
func JoinOCR(spans []core.OCRSpan, threshold float64) string {
	parts := make([]string, 0, len(spans))
	for _, span := range spans {
		if span.Confidence <= threshold {
			continue
		}
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

package enrich

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// PlaceholderSize 内置占位图的边长（像素），与常见图片编码器的输入尺寸一致
const PlaceholderSize = 224

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder 返回内置的空白占位图（224x224 深色 PNG），进程内只生成一次。
// 返回的切片是共享的，调用方不要修改。
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
		fill := color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}
		for y := 0; y < PlaceholderSize; y++ {
			for x := 0; x < PlaceholderSize; x++ {
				img.SetRGBA(x, y, fill)
			}
		}
		var buf bytes.Buffer
		// 编码内存中的 RGBA 图片不会失败
		_ = png.Encode(&buf, img)
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}

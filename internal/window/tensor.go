package window

import (
	"fmt"
	"image"
)

// Tensor is a dense uint8 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []byte
}

// FromImages packs frames into a [1, T, H, W, 3] RGB tensor. All frames must share bounds.
func FromImages(frames []image.Image) (Tensor, error) {
	if len(frames) == 0 {
		return Tensor{}, fmt.Errorf("no frames")
	}
	b := frames[0].Bounds()
	h, w := b.Dy(), b.Dx()
	frameLen := h * w * 3

	data := make([]byte, 0, len(frames)*frameLen)
	for i, f := range frames {
		if f == nil {
			return Tensor{}, fmt.Errorf("frame %d is nil", i)
		}
		fb := f.Bounds()
		if fb.Dx() != w || fb.Dy() != h {
			return Tensor{}, fmt.Errorf("frame %d is %dx%d, want %dx%d", i, fb.Dx(), fb.Dy(), w, h)
		}
		data = appendRGB(data, f)
	}
	return Tensor{Shape: []int{1, len(frames), h, w, 3}, Data: data}, nil
}

func appendRGB(dst []byte, img image.Image) []byte {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				dst = append(dst, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
		return dst
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst = append(dst, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return dst
}

// NumElements returns the product of the shape dimensions.
func (t Tensor) NumElements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

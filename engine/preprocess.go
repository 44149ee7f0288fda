package engine

import (
	"image"

	"github.com/disintegration/imaging"
)

// makeInputBlob resizes the image to the square model input and lays the
// pixels out as NCHW float32 in [0, 1], RGB plane order.
func makeInputBlob(img *image.NRGBA, n int) []float32 {
	resized := imaging.Resize(img, n, n, imaging.Linear)
	blob := make([]float32, 3*n*n)
	plane := n * n
	idx := 0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			blob[idx] = float32(r>>8) / 255.0
			blob[plane+idx] = float32(g>>8) / 255.0
			blob[2*plane+idx] = float32(b>>8) / 255.0
			idx++
		}
	}
	return blob
}

package imgproc

import (
	"bytes"
	"errors"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	iface "ObjDetServer/interface"
)

// Decode turns uploaded bytes into an 8-bit NRGBA pixel grid and reports the
// original width and height. Grayscale, palette, CMYK and alpha sources are
// all canonicalized to NRGBA. Bytes no registered decoder accepts come back
// as a DecodeError, so the detector never sees undecodable input.
func Decode(data []byte) (*image.NRGBA, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, &iface.DecodeError{Cause: errors.New("empty payload")}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, &iface.DecodeError{Cause: err}
	}
	b := img.Bounds()
	return imaging.Clone(img), b.Dx(), b.Dy(), nil
}

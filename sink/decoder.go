package sink

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Decoder turns a JPEG-compressed frame into an interleaved RGB buffer of
// width*height*3 bytes, reused across calls (the scheduler only borrows
// it). The scheduler calls it at most once
// per frame, lazily, and only if at least one RGB-needing sink exists.
type Decoder interface {
	Decode(jpegBytes []byte) ([]byte, error)
}

// JPEGDecoder is the stdlib-backed Decoder. go4vl's own imgsupport package
// reaches for image/jpeg rather than a third-party JPEG codec, and no
// example in this pack offers an alternative; this is the one legitimate
// stdlib-only adapter in the sink package.
type JPEGDecoder struct {
	width, height int
	rgb           []byte
}

// NewJPEGDecoder preallocates the reused RGB output buffer for width x
// height frames.
func NewJPEGDecoder(width, height int) *JPEGDecoder {
	return &JPEGDecoder{width: width, height: height, rgb: make([]byte, width*height*3)}
}

// Decode implements Decoder.
func (d *JPEGDecoder) Decode(jpegBytes []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return nil, fmt.Errorf("sink: jpeg decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != d.width || bounds.Dy() != d.height {
		return nil, fmt.Errorf("sink: decoded frame %dx%d does not match configured %dx%d", bounds.Dx(), bounds.Dy(), d.width, d.height)
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			d.rgb[i] = byte(r >> 8)
			d.rgb[i+1] = byte(g >> 8)
			d.rgb[i+2] = byte(b >> 8)
			i += 3
		}
	}
	return d.rgb, nil
}

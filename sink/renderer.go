package sink

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Renderer draws one decoded RGB buffer per invocation. This
// requires no timestamp argument: the renderer draws the current frame
// immediately and discards it.
type Renderer interface {
	Render(rgb []byte) error
}

// SnapshotRenderer is the concrete Renderer adapter this module ships: it
// composites the frame with a small on-screen-style frame-counter overlay
// and writes it as a PNG to a fixed path, overwriting the previous frame each call. A
// real windowing/GL renderer is an external collaborator; this
// gives the pipeline something runnable end to end without one.
type SnapshotRenderer struct {
	width, height int
	outPath       string
	face          font.Face
	frameIndex    uint64
}

// NewSnapshotRenderer loads the bundled Go regular typeface (via
// golang/freetype, grounded on go4vl's webcam example's use of fogleman/gg)
// and prepares a width x height renderer writing to outPath.
func NewSnapshotRenderer(width, height int, outPath string) (*SnapshotRenderer, error) {
	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("sink: parse embedded font: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: 14})

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sink: create snapshot directory: %w", err)
		}
	}

	return &SnapshotRenderer{width: width, height: height, outPath: outPath, face: face}, nil
}

// Render implements Renderer: composite rgb into a PNG frame overlaid with
// a running frame counter, and write it to the configured path.
func (r *SnapshotRenderer) Render(rgb []byte) error {
	if len(rgb) != r.width*r.height*3 {
		return fmt.Errorf("sink: render: expected %d bytes, got %d", r.width*r.height*3, len(rgb))
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	i := 0
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			img.Set(x, y, rgbAt(rgb, i))
			i += 3
		}
	}

	ctx := gg.NewContextForRGBA(img)
	ctx.SetFontFace(r.face)
	ctx.SetRGB(1, 1, 0)
	ctx.DrawString(fmt.Sprintf("frame %d", r.frameIndex), 8, 20)
	r.frameIndex++

	f, err := os.Create(r.outPath)
	if err != nil {
		return fmt.Errorf("sink: render: create snapshot file: %w", err)
	}
	defer f.Close()
	if err := gg.NewContextForImage(ctx.Image()).EncodePNG(f); err != nil {
		return fmt.Errorf("sink: render: encode png: %w", err)
	}
	return nil
}

func rgbAt(buf []byte, offset int) colorRGB {
	return colorRGB{r: buf[offset], g: buf[offset+1], b: buf[offset+2]}
}

type colorRGB struct{ r, g, b byte }

func (c colorRGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.r) * 0x101
	g = uint32(c.g) * 0x101
	b = uint32(c.b) * 0x101
	a = 0xffff
	return
}

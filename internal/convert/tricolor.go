// Package convert reduces timeline snapshots to the black/red/white palette
// of tri-color e-paper signs and packs them into 1bpp planes.
package convert

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
)

var ErrEmptyImage = errors.New("convert: empty image")

// Palette indexes of a Tricolor image.
const (
	White uint8 = iota
	Black
	Red
)

// TricolorPalette is the palette of images returned by Tricolor.
var TricolorPalette = color.Palette{
	color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	color.NRGBA{A: 0xFF},
	color.NRGBA{R: 0xFF, A: 0xFF},
}

// Tricolor maps every pixel of img to white, black or red.
func Tricolor(img image.Image) (*image.Paletted, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}

	src, ok := img.(*image.NRGBA)
	if !ok {
		src = image.NewNRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}

	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), TricolorPalette)
	for y := 0; y < b.Dy(); y++ {
		row := (y+b.Min.Y-src.Rect.Min.Y)*src.Stride + (b.Min.X-src.Rect.Min.X)*4
		for x := 0; x < b.Dx(); x++ {
			i := row + x*4
			c := color.NRGBA{R: src.Pix[i], G: src.Pix[i+1], B: src.Pix[i+2], A: src.Pix[i+3]}
			out.Pix[y*out.Stride+x] = classify(c)
		}
	}
	return out, nil
}

// classify picks the ink for one pixel. Mostly transparent pixels are
// white; dark pixels are black; clearly red pixels are red.
func classify(c color.NRGBA) uint8 {
	if c.A < 128 {
		return White
	}

	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	luma := 0.299*r + 0.587*g + 0.114*b

	maxGB := g
	if b > maxGB {
		maxGB = b
	}
	redness := r - maxGB

	switch {
	case luma < 64:
		return Black
	case r > 128 && redness > 32:
		return Red
	default:
		return White
	}
}

// PackPlanes packs a Tricolor image into black and red 1bpp planes, rows
// MSB-first and padded to whole bytes. A set bit is white; ink clears it.
func PackPlanes(p *image.Paletted) (black, red []byte) {
	w, h := p.Rect.Dx(), p.Rect.Dy()
	stride := (w + 7) / 8

	black = make([]byte, stride*h)
	red = make([]byte, stride*h)
	for i := range black {
		black[i] = 0xFF
		red[i] = 0xFF
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*stride + x>>3
			mask := byte(0x80 >> (x & 7))
			switch p.Pix[y*p.Stride+x] {
			case Black:
				black[idx] &^= mask
			case Red:
				red[idx] &^= mask
			}
		}
	}
	return black, red
}

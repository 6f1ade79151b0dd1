// Package imaging post-processes generated images: resizing, white
// background removal, found-target overlays and the offline placeholder scene.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Resize scales img to a size×size square.
func Resize(img image.Image, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ToNRGBA returns a copy of img as *image.NRGBA anchored at (0,0).
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes a PNG produced by EncodePNG.
func DecodePNG(b []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// Marker styling for found targets.
const (
	MarkerRadius = 15
	MarkerWidth  = 4
)

var markerColor = color.NRGBA{R: 0, G: 160, B: 0, A: 255}

// MarkFound draws a green ring at each point on a copy of img.
// Points are in img's own coordinate space.
func MarkFound(img image.Image, points []image.Point) *image.NRGBA {
	dst := ToNRGBA(img)
	b := dst.Bounds()
	outer := float64(MarkerRadius)
	inner := float64(MarkerRadius - MarkerWidth)
	for _, p := range points {
		for y := p.Y - MarkerRadius; y <= p.Y+MarkerRadius; y++ {
			for x := p.X - MarkerRadius; x <= p.X+MarkerRadius; x++ {
				if !image.Pt(x, y).In(b) {
					continue
				}
				d := math.Hypot(float64(x-p.X), float64(y-p.Y))
				if d <= outer && d >= inner {
					dst.SetNRGBA(x, y, markerColor)
				}
			}
		}
	}
	return dst
}

// Placeholder renders a soft pastel gradient used when no image provider is
// configured. seed shifts the hue so consecutive rooms look different.
func Placeholder(w, h int, seed uint64) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	shift := float64(seed%360) / 360
	for y := 0; y < h; y++ {
		t := float64(y) / float64(max(h-1, 1))
		for x := 0; x < w; x++ {
			s := float64(x) / float64(max(w-1, 1))
			r := 200 + 55*math.Sin(2*math.Pi*(shift+t*0.5))
			g := 215 + 40*math.Sin(2*math.Pi*(shift+s*0.5+0.33))
			bl := 235 + 20*math.Sin(2*math.Pi*(shift+(s+t)*0.25+0.66))
			dst.SetNRGBA(x, y, color.NRGBA{R: clamp8(r), G: clamp8(g), B: clamp8(bl), A: 255})
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

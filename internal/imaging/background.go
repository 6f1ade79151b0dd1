package imaging

import (
	"image"
)

// BackgroundOptions tune RemoveBackground. Field names follow the alpha
// matting knobs the asset prompts were written for.
type BackgroundOptions struct {
	// ForegroundThreshold: pixels whose darkest channel is at or above this
	// value and are connected to the border count as background.
	ForegroundThreshold uint8
	// BackgroundThreshold: alpha at or below this after feathering becomes 0.
	BackgroundThreshold uint8
	// ErodeSize is the width in pixels of the feathered band along the cut.
	ErodeSize int
}

// DefaultBackgroundOptions mirrors 240 / 10 / 10.
func DefaultBackgroundOptions() BackgroundOptions {
	return BackgroundOptions{ForegroundThreshold: 240, BackgroundThreshold: 10, ErodeSize: 10}
}

// RemoveBackground makes the near-white background of a portrait or icon
// transparent. It flood-fills from every border pixel across near-white
// pixels, so white areas enclosed by the subject are kept. Pixels within
// ErodeSize of the removed region get partial alpha by how white they are.
func RemoveBackground(img image.Image, opts BackgroundOptions) *image.NRGBA {
	dst := ToNRGBA(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	if w == 0 || h == 0 {
		return dst
	}

	lightness := func(x, y int) uint8 {
		i := dst.PixOffset(x, y)
		return min(dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2])
	}

	bg := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		k := y*w + x
		if bg[k] || lightness(x, y) < opts.ForegroundThreshold {
			return
		}
		bg[k] = true
		queue = append(queue, k)
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		x, y := k%w, k/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	dist := distanceToBackground(bg, w, h, opts.ErodeSize)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := y*w + x
			i := dst.PixOffset(x, y)
			if bg[k] {
				dst.Pix[i+3] = 0
				continue
			}
			d := dist[k]
			if d <= 0 || d > opts.ErodeSize {
				continue
			}
			// Inside the band: whiter pixels closer to the cut fade out.
			whiteness := float64(lightness(x, y)) / 255
			edge := 1 - float64(d-1)/float64(opts.ErodeSize)
			alpha := float64(dst.Pix[i+3]) * (1 - whiteness*edge)
			if alpha <= float64(opts.BackgroundThreshold) {
				alpha = 0
			}
			dst.Pix[i+3] = uint8(alpha)
		}
	}
	return dst
}

// distanceToBackground returns, for every pixel, the 4-connected step count
// to the nearest background pixel, capped at limit+1. Background pixels are 0.
func distanceToBackground(bg []bool, w, h, limit int) []int {
	dist := make([]int, w*h)
	queue := make([]int, 0, w*h/4)
	for k, isBg := range bg {
		if isBg {
			queue = append(queue, k)
		} else {
			dist[k] = limit + 1
		}
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		d := dist[k] + 1
		if d > limit {
			continue
		}
		x, y := k%w, k/w
		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
				continue
			}
			nk := n[1]*w + n[0]
			if dist[nk] > d {
				dist[nk] = d
				queue = append(queue, nk)
			}
		}
	}
	return dist
}

// Package combine pairs photos and composites processed halves onto one
// display canvas.
package combine

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// DefaultDividerWidth is the divider stripe width in pixels
const DefaultDividerWidth = 3

// DefaultDividerColor is the divider stripe color
var DefaultDividerColor = color.NRGBA{255, 255, 255, 255}

// Pair shuffles paths and groups them into adjacent pairs. With an odd count
// the last path after shuffling is returned as unpaired instead of being
// duplicated. The input slice is not modified.
func Pair(paths []string, rng *rand.Rand) (pairs [][2]string, unpaired []string) {
	shuffled := make([]string, len(paths))
	copy(shuffled, paths)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}

	if len(shuffled)%2 == 1 {
		unpaired = shuffled[len(shuffled)-1:]
		shuffled = shuffled[:len(shuffled)-1]
	}

	pairs = make([][2]string, 0, len(shuffled)/2)
	for i := 0; i+1 < len(shuffled); i += 2 {
		pairs = append(pairs, [2]string{shuffled[i], shuffled[i+1]})
	}
	return pairs, unpaired
}

// Combine places left and right side by side on a width x height canvas and
// draws a vertical divider centered on the midline. Each half is expected at
// width/2 x height; larger halves are clipped.
func Combine(left, right image.Image, width, height, dividerWidth int, divider color.Color) *image.NRGBA {
	half := width / 2
	canvas := imaging.New(width, height, color.NRGBA{0, 0, 0, 255})

	canvas = imaging.Paste(canvas, clip(left, half, height), image.Pt(0, 0))
	canvas = imaging.Paste(canvas, clip(right, width-half, height), image.Pt(half, 0))

	if dividerWidth > 0 {
		start := max(half-dividerWidth/2, 0)
		end := min(half+dividerWidth/2, width)
		fill(canvas, image.Rect(start, 0, end, height), divider)
	}
	return canvas
}

// Stack places top above bottom on a width x height canvas and draws a
// horizontal divider centered on the midline.
func Stack(top, bottom image.Image, width, height, dividerWidth int, divider color.Color) *image.NRGBA {
	half := height / 2
	canvas := imaging.New(width, height, color.NRGBA{0, 0, 0, 255})

	canvas = imaging.Paste(canvas, clip(top, width, half), image.Pt(0, 0))
	canvas = imaging.Paste(canvas, clip(bottom, width, height-half), image.Pt(0, half))

	if dividerWidth > 0 {
		start := max(half-dividerWidth/2, 0)
		end := min(half+dividerWidth/2, height)
		fill(canvas, image.Rect(0, start, width, end), divider)
	}
	return canvas
}

// clip limits img to at most w x h pixels from its top-left corner
func clip(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+min(w, b.Dx()), b.Min.Y+min(h, b.Dy())))
}

func fill(dst *image.NRGBA, r image.Rectangle, c color.Color) {
	if c == nil {
		c = DefaultDividerColor
	}
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// ParseColor parses "#RRGGBB" or "RRGGBB" into an opaque color
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

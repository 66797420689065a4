package dither

import (
	"fmt"
	"image/color"

	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// Palette is an ordered list of display colors. Order matters: when two
// entries are equally close to a pixel the first one wins.
type Palette []color.RGBA

// Display colors
var (
	Black  = color.RGBA{0, 0, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
	Red    = color.RGBA{252, 0, 0, 255}
	Green  = color.RGBA{0, 252, 0, 255}
	Blue   = color.RGBA{0, 0, 255, 255}
	Yellow = color.RGBA{252, 252, 0, 255}
	Orange = color.RGBA{255, 165, 0, 255}
)

// Palettes for the supported displays
var (
	BlackWhite = Palette{Black, White}
	SixColor   = Palette{Black, White, Red, Green, Blue, Yellow}
	SevenColor = Palette{Black, White, Red, Green, Blue, Yellow, Orange}
)

// ForType returns the palette used by a processing type
func ForType(t types.ProcessingType) (Palette, error) {
	switch t {
	case types.BlackWhite:
		return BlackWhite, nil
	case types.SixColor:
		return SixColor, nil
	case types.SevenColor:
		return SevenColor, nil
	}
	return nil, fmt.Errorf("no palette for processing type %q", t)
}

// Perceptual channel weights for color matching
const (
	weightR = 0.30
	weightG = 0.59
	weightB = 0.11
)

// Distance returns the perceptually weighted squared distance between a
// color and a palette entry.
func Distance(r, g, b float64, c color.RGBA) float64 {
	dr := r - float64(c.R)
	dg := g - float64(c.G)
	db := b - float64(c.B)
	return weightR*dr*dr + weightG*dg*dg + weightB*db*db
}

// Nearest returns the index of the closest palette entry.
// The palette must not be empty.
func (p Palette) Nearest(r, g, b float64) int {
	best := 0
	bestDist := Distance(r, g, b, p[0])
	for i := 1; i < len(p); i++ {
		if d := Distance(r, g, b, p[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Contains reports whether c is exactly one of the palette colors
func (p Palette) Contains(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	for _, pc := range p {
		if uint8(r>>8) == pc.R && uint8(g>>8) == pc.G && uint8(b>>8) == pc.B {
			return true
		}
	}
	return false
}

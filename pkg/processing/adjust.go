package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// AdjustBrightnessContrast applies brightness and contrast deltas in the
// range -100..100. Zero deltas return a plain copy.
func AdjustBrightnessContrast(img image.Image, brightness, contrast int) *image.NRGBA {
	out := imaging.Clone(img)
	if brightness != 0 {
		out = imaging.AdjustBrightness(out, float64(clampPercent(brightness)))
	}
	if contrast != 0 {
		out = imaging.AdjustContrast(out, float64(clampPercent(contrast)))
	}
	return out
}

func clampPercent(v int) int {
	return max(-100, min(100, v))
}

// Rotate90 rotates an image 90 degrees clockwise
func Rotate90(img image.Image) *image.NRGBA {
	return imaging.Rotate270(img)
}

// Corrector improves the colors of an image before dithering
type Corrector interface {
	Correct(img image.Image) (image.Image, error)
}

// AutoColorCorrector stretches levels per channel, neutralizes color casts
// with a gray-world white balance and lifts saturation slightly
type AutoColorCorrector struct {
	// SaturationBoost is a percentage passed to imaging.AdjustSaturation
	SaturationBoost float64
	// MaxCorrection bounds the white balance gain per channel
	MaxCorrection float64
}

// NewAutoColorCorrector returns a corrector with the default tuning
func NewAutoColorCorrector() *AutoColorCorrector {
	return &AutoColorCorrector{SaturationBoost: 10, MaxCorrection: 1.5}
}

// Correct implements Corrector
func (c *AutoColorCorrector) Correct(img image.Image) (image.Image, error) {
	src := imaging.Clone(img)
	if src.Rect.Empty() {
		return src, nil
	}

	lo, hi := [3]uint8{255, 255, 255}, [3]uint8{}
	var sum [3]float64
	for i := 0; i < len(src.Pix); i += 4 {
		for ch := 0; ch < 3; ch++ {
			v := src.Pix[i+ch]
			lo[ch] = min(lo[ch], v)
			hi[ch] = max(hi[ch], v)
		}
	}

	var scale [3]float64
	for ch := 0; ch < 3; ch++ {
		scale[ch] = 1
		if hi[ch] > lo[ch] {
			scale[ch] = 255 / float64(hi[ch]-lo[ch])
		}
	}
	levels := imaging.AdjustFunc(src, func(px color.NRGBA) color.NRGBA {
		px.R = uint8(math.Min(255, float64(px.R-min(px.R, lo[0]))*scale[0]))
		px.G = uint8(math.Min(255, float64(px.G-min(px.G, lo[1]))*scale[1]))
		px.B = uint8(math.Min(255, float64(px.B-min(px.B, lo[2]))*scale[2]))
		return px
	})

	for i := 0; i < len(levels.Pix); i += 4 {
		sum[0] += float64(levels.Pix[i])
		sum[1] += float64(levels.Pix[i+1])
		sum[2] += float64(levels.Pix[i+2])
	}
	gray := (sum[0] + sum[1] + sum[2]) / 3
	maxGain := c.MaxCorrection
	if maxGain < 1 {
		maxGain = 1.5
	}
	var gain [3]float64
	for ch := 0; ch < 3; ch++ {
		gain[ch] = 1
		if sum[ch] > 0 {
			gain[ch] = math.Max(1/maxGain, math.Min(maxGain, gray/sum[ch]))
		}
	}
	balanced := imaging.AdjustFunc(levels, func(px color.NRGBA) color.NRGBA {
		px.R = uint8(math.Min(255, float64(px.R)*gain[0]))
		px.G = uint8(math.Min(255, float64(px.G)*gain[1]))
		px.B = uint8(math.Min(255, float64(px.B)*gain[2]))
		return px
	})

	if c.SaturationBoost != 0 {
		balanced = imaging.AdjustSaturation(balanced, c.SaturationBoost)
	}
	return balanced, nil
}

// Package optimizer picks dithering parameters from image statistics.
//
// Analyze measures brightness, contrast, saturation, edge density and the
// dominant hue of an image. Optimize runs a fixed cascade of threshold
// comparisons over those measurements and the number of detected people.
// The same input always produces the same Result.
package optimizer

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/sephiroth74/photoframe-processor/pkg/dither"
)

// Classification thresholds
const (
	LowLightThreshold     = 0.35
	HighContrastThreshold = 0.65
	MonochromeThreshold   = 0.15
	PastelSaturation      = 0.4
	PastelBrightness      = 0.45
	PortraitDetail        = 0.25
	SceneDetail           = 0.35
	EdgeGradient          = 30
)

// Hue is the dominant color channel of an image
type Hue string

const (
	Neutral  Hue = "neutral"
	RedHue   Hue = "red"
	GreenHue Hue = "green"
	BlueHue  Hue = "blue"
)

// hueMinAvg is the channel average a dominant hue must exceed
const hueMinAvg = 140

// Stats holds the measurements Optimize works from
type Stats struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Detail     float64 `json:"detail"`
	Hue        Hue     `json:"hue"`
}

// LowLight reports an average brightness below 0.35
func (s Stats) LowLight() bool { return s.Brightness < LowLightThreshold }

// HighContrast reports a contrast ratio above 0.65
func (s Stats) HighContrast() bool { return s.Contrast > HighContrastThreshold }

// Monochrome reports an average saturation below 0.15
func (s Stats) Monochrome() bool { return s.Saturation < MonochromeThreshold }

// Pastel reports soft, bright colors
func (s Stats) Pastel() bool {
	return s.Saturation < PastelSaturation && s.Brightness > PastelBrightness
}

// Result is the chosen parameter set
type Result struct {
	Method    dither.Method `json:"method"`
	Strength  float64       `json:"strength"`
	Contrast  float64       `json:"contrast"`
	AutoColor bool          `json:"auto_color"`
	Stats     Stats         `json:"stats"`
	Reasoning []string      `json:"reasoning"`
}

// ContrastPercent returns the contrast delta on the -100..100 scale used by
// the color adjustment step
func (r Result) ContrastPercent() int {
	return int(math.Round(r.Contrast * 100))
}

func luma709(r, g, b uint8) uint8 {
	return uint8(0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b))
}

// Analyze measures an image
func Analyze(img image.Image) Stats {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	n := w * h
	if n == 0 {
		return Stats{Hue: Neutral}
	}

	gray := make([]uint8, n)
	var lumaSum, rSum, gSum, bSum uint64
	var satSum float64
	minL, maxL := uint8(255), uint8(0)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			l := luma709(r, g, b)
			gray[y*w+x] = l
			lumaSum += uint64(l)
			if l < minL {
				minL = l
			}
			if l > maxL {
				maxL = l
			}

			rSum += uint64(r)
			gSum += uint64(g)
			bSum += uint64(b)

			hi := max(r, g, b)
			lo := min(r, g, b)
			if hi > 0 {
				satSum += float64(hi-lo) / float64(hi)
			}
		}
	}

	return Stats{
		Brightness: float64(lumaSum) / float64(n) / 255,
		Contrast:   float64(maxL-minL) / 255,
		Saturation: satSum / float64(n),
		Detail:     edgeDensity(gray, w, h),
		Hue: dominantHue(
			float64(rSum)/float64(n),
			float64(gSum)/float64(n),
			float64(bSum)/float64(n),
		),
	}
}

// edgeDensity is the share of interior pixels whose right or bottom
// neighbor differs by more than EdgeGradient
func edgeDensity(gray []uint8, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := int(gray[y*w+x])
			dx := abs(int(gray[y*w+x+1]) - c)
			dy := abs(int(gray[(y+1)*w+x]) - c)
			if dx > EdgeGradient || dy > EdgeGradient {
				edges++
			}
		}
	}
	return float64(edges) / float64((w-2)*(h-2))
}

func dominantHue(r, g, b float64) Hue {
	switch {
	case r > g && r > b && r > hueMinAvg:
		return RedHue
	case g > r && g > b && g > hueMinAvg:
		return GreenHue
	case b > r && b > g && b > hueMinAvg:
		return BlueHue
	}
	return Neutral
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Optimize chooses dithering parameters. colorDisplay enables the extra
// strength adjustments for multi-color panels.
func Optimize(s Stats, people int, colorDisplay bool) Result {
	res := Result{Stats: s}
	hasPeople := people > 0

	// Method
	if hasPeople {
		res.note("portrait photo with %d people detected", people)
		switch {
		case s.Pastel():
			res.Method = dither.Atkinson
			res.note("pastel tones: atkinson preserves soft colors")
		case s.Detail > PortraitDetail:
			res.Method = dither.JarvisJudiceNinke
			res.note("high detail: jarvis-judice-ninke for smooth skin")
		case s.LowLight():
			res.Method = dither.Stucki
			res.note("low light: stucki for shadow detail")
		default:
			res.Method = dither.FloydSteinberg
			res.note("standard portrait: floyd-steinberg")
		}
	} else {
		res.note("scene without people")
		switch {
		case s.Monochrome():
			res.Method = dither.Ordered
			res.note("near monochrome: ordered halftone")
		case s.Detail > SceneDetail:
			res.Method = dither.Stucki
			res.note("complex scene: stucki for wide diffusion")
		case s.Pastel():
			res.Method = dither.Atkinson
			res.note("pastel scene: atkinson preserves soft colors")
		case s.Saturation > PastelSaturation:
			res.Method = dither.JarvisJudiceNinke
			res.note("vibrant scene: jarvis-judice-ninke for rich colors")
		default:
			res.Method = dither.FloydSteinberg
			res.note("standard scene: floyd-steinberg")
		}
	}

	// Strength
	switch {
	case s.Pastel():
		res.Strength = 0.8
	case hasPeople && s.LowLight():
		res.Strength = 0.7
	case hasPeople && s.Brightness > 0.7:
		res.Strength = 1.0
	case hasPeople:
		res.Strength = 0.9
	case s.Detail > 0.5:
		res.Strength = 1.3
	case s.Monochrome():
		res.Strength = 1.1
	default:
		res.Strength = 1.0
	}
	res.note("dither strength %.1f", res.Strength)

	// Contrast
	switch {
	case s.Pastel():
		res.Contrast = 0
	case s.Contrast < 0.2:
		res.Contrast = pick(hasPeople, 0.10, 0.15)
	case s.Contrast < 0.35:
		res.Contrast = pick(hasPeople, 0.05, 0.10)
	case s.HighContrast():
		res.Contrast = pick(hasPeople, -0.20, -0.15)
	default:
		res.Contrast = -0.10
	}
	res.note("contrast %+.2f", res.Contrast)

	// Color correction
	switch {
	case s.Pastel():
		res.AutoColor = false
	case s.LowLight() && !s.Monochrome():
		res.AutoColor = true
	case s.Saturation < 0.2 && !s.Monochrome():
		res.AutoColor = true
	default:
		res.AutoColor = false
	}
	res.note("auto color correction %v", res.AutoColor)

	if colorDisplay {
		res.adjustForColorDisplay()
	}

	res.note("final: %v strength %.2f contrast %+.2f auto-color %v",
		res.Method, res.Strength, res.Contrast, res.AutoColor)
	return res
}

// adjustForColorDisplay tunes strength for panels without native grays
func (r *Result) adjustForColorDisplay() {
	s := r.Stats
	if s.Monochrome() {
		r.Strength = math.Max(r.Strength, 1.1)
		r.note("color display: more dither for gray simulation")
	}
	if s.Pastel() {
		r.Strength = math.Min(r.Strength, 0.9)
		r.note("color display: capped dither for pastel tones")
	}
	switch s.Hue {
	case RedHue, GreenHue:
		r.Strength *= 0.9
		r.note("color display: dominant %s is a native color", s.Hue)
	case BlueHue:
		r.Strength *= 1.1
		r.note("color display: more dither for blue")
	}
}

func (r *Result) note(format string, args ...any) {
	r.Reasoning = append(r.Reasoning, fmt.Sprintf(format, args...))
}

func pick(people bool, portrait, scene float64) float64 {
	if people {
		return portrait
	}
	return scene
}

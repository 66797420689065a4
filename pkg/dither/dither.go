// Package dither reduces images to a small display palette.
//
// Four error-diffusion strategies (Floyd-Steinberg, Atkinson, Stucki and
// Jarvis-Judice-Ninke) scan pixels in raster order and push the quantization
// error of each pixel onto neighbors that have not been visited yet. The
// ordered strategy uses an 8x8 Bayer threshold matrix and keeps no state
// between pixels.
//
// A Ditherer is built once for a method, palette and strength and can then be
// applied to any number of images, including from several goroutines.
package dither

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Method selects a dithering strategy
type Method int

const (
	FloydSteinberg Method = iota
	Atkinson
	Stucki
	JarvisJudiceNinke
	Ordered
)

var methodNames = map[Method]string{
	FloydSteinberg:    "floyd-steinberg",
	Atkinson:          "atkinson",
	Stucki:            "stucki",
	JarvisJudiceNinke: "jarvis-judice-ninke",
	Ordered:           "ordered",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod parses a method name. Short aliases are accepted.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "floyd-steinberg", "floyd", "fs":
		return FloydSteinberg, nil
	case "atkinson":
		return Atkinson, nil
	case "stucki":
		return Stucki, nil
	case "jarvis-judice-ninke", "jarvis", "jjn":
		return JarvisJudiceNinke, nil
	case "ordered", "bayer":
		return Ordered, nil
	}
	return 0, fmt.Errorf("unknown dithering method: %s", s)
}

// Methods returns all strategies in declaration order
func Methods() []Method {
	return []Method{FloydSteinberg, Atkinson, Stucki, JarvisJudiceNinke, Ordered}
}

// weight is one entry of a diffusion kernel
type weight struct {
	dx, dy int
	w      float64
}

func kernel(divisor float64, entries ...[3]int) []weight {
	k := make([]weight, len(entries))
	for i, e := range entries {
		k[i] = weight{dx: e[0], dy: e[1], w: float64(e[2]) / divisor}
	}
	return k
}

var kernels = map[Method][]weight{
	FloydSteinberg: kernel(16,
		[3]int{1, 0, 7},
		[3]int{-1, 1, 3}, [3]int{0, 1, 5}, [3]int{1, 1, 1},
	),
	// Atkinson spreads 6/8 of the error; the rest is dropped.
	Atkinson: kernel(8,
		[3]int{1, 0, 1}, [3]int{2, 0, 1},
		[3]int{-1, 1, 1}, [3]int{0, 1, 1}, [3]int{1, 1, 1},
		[3]int{0, 2, 1},
	),
	Stucki: kernel(42,
		[3]int{1, 0, 8}, [3]int{2, 0, 4},
		[3]int{-2, 1, 2}, [3]int{-1, 1, 4}, [3]int{0, 1, 8}, [3]int{1, 1, 4}, [3]int{2, 1, 2},
		[3]int{-2, 2, 1}, [3]int{-1, 2, 2}, [3]int{0, 2, 4}, [3]int{1, 2, 2}, [3]int{2, 2, 1},
	),
	JarvisJudiceNinke: kernel(48,
		[3]int{1, 0, 7}, [3]int{2, 0, 5},
		[3]int{-2, 1, 3}, [3]int{-1, 1, 5}, [3]int{0, 1, 7}, [3]int{1, 1, 5}, [3]int{2, 1, 3},
		[3]int{-2, 2, 1}, [3]int{-1, 2, 3}, [3]int{0, 2, 5}, [3]int{1, 2, 3}, [3]int{2, 2, 1},
	),
}

// bayer8 is the 8x8 Bayer index matrix; thresholds are value/64
var bayer8 = [8][8]float64{
	{0, 48, 12, 60, 3, 51, 15, 63},
	{32, 16, 44, 28, 35, 19, 47, 31},
	{8, 56, 4, 52, 11, 59, 7, 55},
	{40, 24, 36, 20, 43, 27, 39, 23},
	{2, 50, 14, 62, 1, 49, 13, 61},
	{34, 18, 46, 30, 33, 17, 45, 29},
	{10, 58, 6, 54, 9, 57, 5, 53},
	{42, 26, 38, 22, 41, 25, 37, 21},
}

const gammaExponent = 2.2

// Strength limits
const (
	MinStrength     = 0.0
	MaxStrength     = 2.0
	DefaultStrength = 1.0
)

// ErrEmptyPalette is returned when a Ditherer is built without colors
var ErrEmptyPalette = errors.New("dither: empty palette")

// Options tune a Ditherer
type Options struct {
	// Strength scales the diffused error. 0 disables diffusion.
	Strength float64
	// Gamma pre-corrects the working buffer with exponent 2.2.
	Gamma bool
}

// DefaultOptions returns full strength with gamma pre-correction
func DefaultOptions() Options {
	return Options{Strength: DefaultStrength, Gamma: true}
}

// Ditherer applies one strategy with a fixed palette and strength
type Ditherer struct {
	method   Method
	palette  Palette
	kernel   []weight
	strength float64
	gamma    bool
}

// New creates a Ditherer. The kernel is resolved here so that the per-pixel
// loop does not branch on the method.
func New(method Method, palette Palette, opts Options) (*Ditherer, error) {
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	if opts.Strength < MinStrength || opts.Strength > MaxStrength {
		return nil, fmt.Errorf("dither: strength %.2f out of range [%.1f, %.1f]", opts.Strength, MinStrength, MaxStrength)
	}
	d := &Ditherer{
		method:   method,
		palette:  palette,
		strength: opts.Strength,
		gamma:    opts.Gamma,
	}
	if method != Ordered {
		k, ok := kernels[method]
		if !ok {
			return nil, fmt.Errorf("dither: unsupported method %v", method)
		}
		d.kernel = k
	}
	return d, nil
}

// Method returns the strategy of the ditherer
func (d *Ditherer) Method() Method {
	return d.method
}

// Palette returns the palette of the ditherer
func (d *Ditherer) Palette() Palette {
	return d.palette
}

// Strength returns the error multiplier
func (d *Ditherer) Strength() float64 {
	return d.strength
}

// Apply returns a new image in which every pixel is a palette color
func (d *Ditherer) Apply(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	if d.method == Ordered {
		return d.ordered(src)
	}
	return d.diffuse(src)
}

func (d *Ditherer) diffuse(src *image.NRGBA) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := make([]float64, w*h*3)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			for c := 0; c < 3; c++ {
				v := float64(row[x*4+c])
				if d.gamma {
					v = math.Pow(v/255, gammaExponent) * 255
				}
				buf[i+c] = v
			}
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			r := clamp255(buf[i])
			g := clamp255(buf[i+1])
			b := clamp255(buf[i+2])

			p := d.palette[d.palette.Nearest(r, g, b)]
			setPixel(dst, x, y, p.R, p.G, p.B)

			er := (r - float64(p.R)) * d.strength
			eg := (g - float64(p.G)) * d.strength
			eb := (b - float64(p.B)) * d.strength
			if er == 0 && eg == 0 && eb == 0 {
				continue
			}
			for _, k := range d.kernel {
				nx, ny := x+k.dx, y+k.dy
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				j := (ny*w + nx) * 3
				buf[j] += er * k.w
				buf[j+1] += eg * k.w
				buf[j+2] += eb * k.w
			}
		}
	}
	return dst
}

func (d *Ditherer) ordered(src *image.NRGBA) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			t := bayer8[y%8][x%8]/64 - 0.5
			r := orderedChannel(row[x*4], t)
			g := orderedChannel(row[x*4+1], t)
			b := orderedChannel(row[x*4+2], t)
			p := d.palette[d.palette.Nearest(r, g, b)]
			setPixel(dst, x, y, p.R, p.G, p.B)
		}
	}
	return dst
}

func orderedChannel(v uint8, t float64) float64 {
	n := float64(v)/255 + t
	if n < 0 {
		n = 0
	} else if n > 1 {
		n = 1
	}
	return n * 255
}

// BlackWhiteDither converts img to grayscale and dithers it to pure black and
// white with single-channel Floyd-Steinberg. No gamma correction is applied.
func BlackWhiteDither(img image.Image, strength float64) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			buf[y*w+x] = float64(Luminance(row[x*4], row[x*4+1], row[x*4+2]))
		}
	}

	fs := kernels[FloydSteinberg]
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := clamp255(buf[y*w+x])
			var out uint8
			if v >= 128 {
				out = 255
			}
			setPixel(dst, x, y, out, out, out)

			e := (v - float64(out)) * strength
			if e == 0 {
				continue
			}
			for _, k := range fs {
				nx, ny := x+k.dx, y+k.dy
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				buf[ny*w+nx] += e * k.w
			}
		}
	}
	return dst
}

// Luminance returns the ITU-R BT.601 luma of an RGB color
func Luminance(r, g, b uint8) uint8 {
	return uint8(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func setPixel(img *image.NRGBA, x, y int, r, g, b uint8) {
	i := y*img.Stride + x*4
	img.Pix[i+0] = r
	img.Pix[i+1] = g
	img.Pix[i+2] = b
	img.Pix[i+3] = 255
}

// Package encoder packs palette-quantized images into the byte layouts read
// by e-paper display firmware.
//
// Three layouts are supported:
//
//   - 8-bit: one RRRGGGBB byte per pixel.
//   - native 4-bit: two pixels per byte, one nibble code per display color.
//   - demo bitmap: one byte per pixel, chosen by tolerance bands around the
//     six display colors.
//
// Every encoder validates the produced length before returning.
package encoder

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ErrLength is returned when an encoded buffer has the wrong size
var ErrLength = errors.New("binary length mismatch")

// Native nibble codes
const (
	NativeBlack  byte = 0x0
	NativeWhite  byte = 0x1
	NativeGreen  byte = 0x2
	NativeBlue   byte = 0x3
	NativeRed    byte = 0x4
	NativeYellow byte = 0x5
)

// Demo bitmap codes
const (
	DemoBlack  byte = 0x00
	DemoWhite  byte = 0xFF
	DemoYellow byte = 0xFC
	DemoRed    byte = 0xE0
	DemoGreen  byte = 0x1C
	DemoBlue   byte = 0x03
)

// nativeColors lists the display colors in fallback tie order
var nativeColors = []struct {
	c    color.RGBA
	code byte
}{
	{color.RGBA{0, 0, 0, 255}, NativeBlack},
	{color.RGBA{255, 255, 255, 255}, NativeWhite},
	{color.RGBA{252, 0, 0, 255}, NativeRed},
	{color.RGBA{0, 252, 0, 255}, NativeGreen},
	{color.RGBA{0, 0, 255, 255}, NativeBlue},
	{color.RGBA{252, 252, 0, 255}, NativeYellow},
}

// ValidateLength checks that n bytes hold one byte per pixel of a width x height image
func ValidateLength(n, width, height int) error {
	if expected := width * height; n != expected {
		return fmt.Errorf("%w for %dx%d: expected %d bytes, got %d bytes", ErrLength, width, height, expected, n)
	}
	return nil
}

// ValidatePackedLength checks the size of a two-pixels-per-byte buffer
func ValidatePackedLength(n, width, height int) error {
	if expected := PackedSize(width, height); n != expected {
		return fmt.Errorf("%w for %dx%d packed: expected %d bytes, got %d bytes", ErrLength, width, height, expected, n)
	}
	return nil
}

// PackedSize returns the number of bytes needed for two pixels per byte
func PackedSize(width, height int) int {
	return (width*height + 1) / 2
}

// RGBTo8Bit packs a color into RRRGGGBB
func RGBTo8Bit(r, g, b uint8) byte {
	return (r>>5)<<5 | (g>>5)<<2 | b>>6
}

// Decode8Bit expands an RRRGGGBB byte back to 8-bit channels
func Decode8Bit(v byte) (r, g, b uint8) {
	r3 := (v >> 5) & 0x07
	g3 := (v >> 2) & 0x07
	b2 := v & 0x03

	r, g, b = r3*36, g3*36, b2*85
	if r3 == 7 {
		r = 255
	}
	if g3 == 7 {
		g = 255
	}
	return r, g, b
}

// Encode8Bit returns one RRRGGGBB byte per pixel in raster order
func Encode8Bit(img image.Image) ([]byte, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			out = append(out, RGBTo8Bit(row[x*4], row[x*4+1], row[x*4+2]))
		}
	}
	if err := ValidateLength(len(out), w, h); err != nil {
		return nil, err
	}
	return out, nil
}

// NativeCode maps a color to its nibble code. Exact matches win; anything
// else falls back to the nearest display color by squared distance.
func NativeCode(r, g, b uint8) byte {
	for _, nc := range nativeColors {
		if nc.c.R == r && nc.c.G == g && nc.c.B == b {
			return nc.code
		}
	}

	best := nativeColors[0].code
	bestDist := -1
	for _, nc := range nativeColors {
		dr := int(r) - int(nc.c.R)
		dg := int(g) - int(nc.c.G)
		db := int(b) - int(nc.c.B)
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = nc.code, d
		}
	}
	return best
}

// EncodeNative4Bit packs two pixels per byte, first pixel in the high
// nibble. An odd trailing pixel is padded with white.
func EncodeNative4Bit(img image.Image) ([]byte, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]byte, 0, PackedSize(w, h))

	var pending byte
	odd := false
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			code := NativeCode(row[x*4], row[x*4+1], row[x*4+2])
			if !odd {
				pending = code << 4
			} else {
				out = append(out, pending|code)
			}
			odd = !odd
		}
	}
	if odd {
		out = append(out, pending|NativeWhite)
	}

	if err := ValidatePackedLength(len(out), w, h); err != nil {
		return nil, err
	}
	return out, nil
}

// DemoCode maps a color to its demo bitmap byte. Channels at or above 250
// count as on, below 10 as off; other combinations map to black.
func DemoCode(r, g, b uint8) byte {
	on := func(v uint8) bool { return v >= 250 }
	off := func(v uint8) bool { return v < 10 }

	switch {
	case on(r) && on(g) && on(b):
		return DemoWhite
	case on(r) && on(g) && off(b):
		return DemoYellow
	case on(r) && off(g) && off(b):
		return DemoRed
	case off(r) && on(g) && off(b):
		return DemoGreen
	case off(r) && off(g) && on(b):
		return DemoBlue
	default:
		return DemoBlack
	}
}

// EncodeDemoBitmap returns one demo bitmap byte per pixel
func EncodeDemoBitmap(img image.Image) ([]byte, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			out = append(out, DemoCode(row[x*4], row[x*4+1], row[x*4+2]))
		}
	}
	if err := ValidateLength(len(out), w, h); err != nil {
		return nil, err
	}
	return out, nil
}

// Package orientation resolves EXIF orientation tags into effective image
// dimensions, a portrait/landscape classification and the pixel transform
// that puts the image upright.
package orientation

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrOrientation is returned when orientation metadata cannot be read.
// Callers treat it as non-fatal and fall back to Undefined.
var ErrOrientation = errors.New("orientation metadata unavailable")

// Orientation is an EXIF orientation code
type Orientation int

// EXIF orientation codes
const (
	Undefined   Orientation = 0
	TopLeft     Orientation = 1 // normal
	TopRight    Orientation = 2 // flip horizontal
	BottomRight Orientation = 3 // rotate 180
	BottomLeft  Orientation = 4 // flip vertical
	LeftTop     Orientation = 5 // flip horizontal, rotate 270 CW
	RightTop    Orientation = 6 // rotate 90 CW
	RightBottom Orientation = 7 // flip horizontal, rotate 90 CW
	LeftBottom  Orientation = 8 // rotate 270 CW
)

// FromCode maps a raw tag value to an Orientation. Unknown values map to Undefined.
func FromCode(code int) Orientation {
	if code < 1 || code > 8 {
		return Undefined
	}
	return Orientation(code)
}

// Transform returns the clockwise rotation in degrees and whether a horizontal
// flip is applied before it.
func (o Orientation) Transform() (degrees int, flip bool) {
	switch o {
	case TopRight:
		return 0, true
	case BottomRight:
		return 180, false
	case BottomLeft:
		return 180, true
	case LeftTop:
		return 270, true
	case RightTop:
		return 90, false
	case RightBottom:
		return 90, true
	case LeftBottom:
		return 270, false
	default:
		return 0, false
	}
}

// IsRotatedPortrait reports whether the code is one of the two 90 degree rotations
func (o Orientation) IsRotatedPortrait() bool {
	return o == RightTop || o == LeftBottom
}

func (o Orientation) String() string {
	switch o {
	case TopLeft:
		return "Normal (0°)"
	case TopRight:
		return "Horizontal flip"
	case BottomRight:
		return "Rotated 180°"
	case BottomLeft:
		return "Vertical flip"
	case LeftTop:
		return "Rotated 270° CW + horizontal flip"
	case RightTop:
		return "Rotated 90° CW (portrait)"
	case RightBottom:
		return "Rotated 90° CW + horizontal flip"
	case LeftBottom:
		return "Rotated 270° CW (portrait)"
	default:
		return "Undefined orientation"
	}
}

// Info describes the orientation of one input. It is created once and not modified.
type Info struct {
	Orientation     Orientation `json:"orientation"`
	IsPortrait      bool        `json:"is_portrait"`
	Width           int         `json:"width"`
	Height          int         `json:"height"`
	EffectiveWidth  int         `json:"effective_width"`
	EffectiveHeight int         `json:"effective_height"`
}

// NewInfo derives effective dimensions and classification from raw dimensions
func NewInfo(o Orientation, width, height int) Info {
	ew, eh := width, height
	if o.IsRotatedPortrait() {
		ew, eh = height, width
	}
	return Info{
		Orientation:     o,
		IsPortrait:      o.IsRotatedPortrait() || eh > ew,
		Width:           width,
		Height:          height,
		EffectiveWidth:  ew,
		EffectiveHeight: eh,
	}
}

// ReadOrientation reads the EXIF orientation tag from r
func ReadOrientation(r io.Reader) (Orientation, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return Undefined, fmt.Errorf("%w: %v", ErrOrientation, err)
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Undefined, fmt.Errorf("%w: %v", ErrOrientation, err)
	}
	code, err := tag.Int(0)
	if err != nil {
		return Undefined, fmt.Errorf("%w: %v", ErrOrientation, err)
	}
	return FromCode(code), nil
}

// readFileOrientation never fails; unreadable metadata yields Undefined
func readFileOrientation(path string) Orientation {
	f, err := os.Open(path)
	if err != nil {
		return Undefined
	}
	defer f.Close()

	o, err := ReadOrientation(f)
	if err != nil {
		return Undefined
	}
	return o
}

// Probe classifies a file from its headers only: image config and EXIF,
// without decoding pixel data.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read image header: %w", err)
	}
	return NewInfo(readFileOrientation(path), cfg.Width, cfg.Height), nil
}

// Load decodes the full image and returns it upright together with its
// orientation info.
func Load(path string) (image.Image, Info, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	upright, info := Upright(img, path)
	return upright, info, nil
}

// Upright rotates an image already decoded from path according to the EXIF
// orientation of that file. Without metadata the image is returned as is.
func Upright(img image.Image, path string) (image.Image, Info) {
	b := img.Bounds()
	info := NewInfo(readFileOrientation(path), b.Dx(), b.Dy())
	return Apply(img, info.Orientation), info
}

// Detect performs the full detection: the image is decoded to read its real size.
func Detect(path string) (Info, error) {
	_, info, err := Load(path)
	return info, err
}

// Apply transforms img so that it is displayed upright
func Apply(img image.Image, o Orientation) image.Image {
	switch o {
	case TopRight:
		return imaging.FlipH(img)
	case BottomRight:
		return imaging.Rotate180(img)
	case BottomLeft:
		return imaging.FlipV(img)
	case LeftTop:
		return imaging.Transpose(img)
	case RightTop:
		return imaging.Rotate270(img)
	case RightBottom:
		return imaging.Transverse(img)
	case LeftBottom:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// ShouldSwap reports whether the target box has to be swapped so that its
// orientation matches the image.
func ShouldSwap(imagePortrait bool, targetWidth, targetHeight int, auto bool) bool {
	if !auto {
		return false
	}
	return imagePortrait != (targetHeight > targetWidth)
}

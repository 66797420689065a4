package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/sephiroth74/photoframe-processor/pkg/orientation"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// MinCropSize is the smallest crop window, in pixels per side, that is resampled
const MinCropSize = 10

// ErrCropTooSmall is returned when a crop window falls below MinCropSize
var ErrCropTooSmall = errors.New("crop window below minimum size")

// SmartCropper crops images toward a detected subject and resamples them to
// an exact target size
type SmartCropper struct {
	config CropConfig
}

// CropConfig holds configuration for smart cropping
type CropConfig struct {
	Filter  imaging.ResampleFilter
	MinSize int
}

// New creates a new SmartCropper with default configuration
func New() *SmartCropper {
	return &SmartCropper{
		config: CropConfig{
			Filter:  imaging.Lanczos,
			MinSize: MinCropSize,
		},
	}
}

// NewWithConfig creates a new SmartCropper with custom configuration
func NewWithConfig(config CropConfig) *SmartCropper {
	if config.MinSize <= 0 {
		config.MinSize = MinCropSize
	}
	return &SmartCropper{config: config}
}

// CropResult contains the result of a resize operation
type CropResult struct {
	Image        *image.NRGBA
	Window       image.Rectangle
	Width        int
	Height       int
	Swapped      bool
	SubjectAware bool
	Retried      bool
}

// CropSize returns the largest window with the target aspect ratio that
// fits in the source
func CropSize(srcW, srcH, targetW, targetH int) (int, int) {
	srcAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(targetW) / float64(targetH)

	cropW, cropH := srcW, srcH
	if srcAspect > targetAspect {
		cropW = int(math.Round(float64(srcH) * targetAspect))
		if cropW > srcW {
			cropW = srcW
		}
	} else {
		cropH = int(math.Round(float64(srcW) / targetAspect))
		if cropH > srcH {
			cropH = srcH
		}
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	return cropW, cropH
}

// CenteredOffset returns the offset that centers a crop of cropDim in srcDim
func CenteredOffset(srcDim, cropDim int) int {
	return (srcDim - cropDim) / 2
}

// ClampOffset centers a crop of cropDim on center and clamps it into
// [0, srcDim-cropDim]
func ClampOffset(center, srcDim, cropDim int) int {
	o := center - cropDim/2
	if maxOffset := srcDim - cropDim; o > maxOffset {
		o = maxOffset
	}
	if o < 0 {
		o = 0
	}
	return o
}

// ClampCrop returns the top-left corner of a cropW x cropH window centered
// on a subject and kept inside a srcW x srcH image
func ClampCrop(srcW, srcH, cropW, cropH int, center types.Point) image.Point {
	return image.Point{
		X: ClampOffset(center.X, srcW, cropW),
		Y: ClampOffset(center.Y, srcH, cropH),
	}
}

// CropOffset picks the subject-centered offset when people were detected and
// the plain centered offset otherwise
func CropOffset(srcW, srcH, cropW, cropH int, detection *types.DetectionResult) (image.Point, bool) {
	if detection.HasPeople() {
		return ClampCrop(srcW, srcH, cropW, cropH, detection.Center), true
	}
	return image.Point{
		X: CenteredOffset(srcW, cropW),
		Y: CenteredOffset(srcH, cropH),
	}, false
}

// Resize crops img to the target aspect ratio and resamples it to exactly
// targetWidth x targetHeight, or the swapped size when autoSwap is set and
// the image orientation disagrees with the target box.
func (c *SmartCropper) Resize(img image.Image, targetWidth, targetHeight int, autoSwap bool, detection *types.DetectionResult) (CropResult, error) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return CropResult{}, fmt.Errorf("invalid image dimensions")
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return CropResult{}, fmt.Errorf("invalid target size %dx%d", targetWidth, targetHeight)
	}

	result := CropResult{}
	if orientation.ShouldSwap(srcH > srcW, targetWidth, targetHeight, autoSwap) {
		targetWidth, targetHeight = targetHeight, targetWidth
		result.Swapped = true
	}
	result.Width, result.Height = targetWidth, targetHeight

	cropW, cropH := CropSize(srcW, srcH, targetWidth, targetHeight)
	offset, subjectAware := CropOffset(srcW, srcH, cropW, cropH, detection)
	result.SubjectAware = subjectAware

	cropped, window, err := c.crop(img, offset, cropW, cropH)
	if errors.Is(err, ErrCropTooSmall) {
		result.Retried = true
		centered := image.Point{X: CenteredOffset(srcW, cropW), Y: CenteredOffset(srcH, cropH)}
		cropped, window, err = c.crop(img, centered, cropW, cropH)
	}
	if err != nil {
		// The window is smaller than the guard only for tiny sources;
		// resample the whole image instead.
		cropped, window = imaging.Clone(img), image.Rect(0, 0, srcW, srcH)
	}
	result.Window = window
	result.Image = c.resample(cropped, targetWidth, targetHeight)
	return result, nil
}

func (c *SmartCropper) crop(img image.Image, offset image.Point, cropW, cropH int) (*image.NRGBA, image.Rectangle, error) {
	bounds := img.Bounds()
	window := image.Rect(offset.X, offset.Y, offset.X+cropW, offset.Y+cropH).
		Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if window.Dx() < c.config.MinSize || window.Dy() < c.config.MinSize {
		return nil, window, fmt.Errorf("%w: %dx%d (minimum %dx%d)", ErrCropTooSmall,
			window.Dx(), window.Dy(), c.config.MinSize, c.config.MinSize)
	}
	return imaging.Crop(img, window.Add(bounds.Min)), window, nil
}

func (c *SmartCropper) resample(img *image.NRGBA, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, c.config.Filter)
}

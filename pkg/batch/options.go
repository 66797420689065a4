package batch

import (
	"fmt"
	"image/color"
	"runtime"
	"strings"

	"github.com/sephiroth74/photoframe-processor/pkg/combine"
	"github.com/sephiroth74/photoframe-processor/pkg/detection"
	"github.com/sephiroth74/photoframe-processor/pkg/dither"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// TargetOrientation is how the display is mounted
type TargetOrientation string

const (
	// TargetLandscape pairs portraits side by side
	TargetLandscape TargetOrientation = "landscape"
	// TargetPortrait pairs landscapes top to bottom
	TargetPortrait TargetOrientation = "portrait"
)

// ParseTargetOrientation parses "landscape" or "portrait"
func ParseTargetOrientation(s string) (TargetOrientation, error) {
	switch t := TargetOrientation(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetLandscape, TargetPortrait:
		return t, nil
	}
	return "", fmt.Errorf("invalid target orientation %q", s)
}

// Options configure a batch run
type Options struct {
	OutputDir string
	// Width and Height are the native panel resolution
	Width  int
	Height int
	Type   types.ProcessingType
	Target TargetOrientation

	Formats  []processing.Format
	Method   dither.Method
	Strength float64

	AutoOptimize bool
	AutoColor    bool
	// Corrector is used for auto color; nil selects the built-in corrector
	Corrector  processing.Corrector
	Brightness int
	Contrast   int

	// Detector locates people; nil disables detection
	Detector   detection.Detector
	Confidence float64

	DividerWidth int
	DividerColor color.NRGBA

	// AutoSwap lets single images swap the canvas to match their orientation
	AutoSwap bool
	Jobs     int
	Force    bool
	DryRun   bool
	Debug    bool
	Verbose  bool
	// Seed drives the pairing shuffle; 0 picks a time-based seed
	Seed int64

	Extensions []string
	MaxDepth   int
}

// DefaultOptions returns the defaults for a 800x480 six-color panel
func DefaultOptions() Options {
	return Options{
		OutputDir:    "output",
		Width:        800,
		Height:       480,
		Type:         types.SixColor,
		Target:       TargetLandscape,
		Formats:      []processing.Format{processing.FormatBMP, processing.FormatBin},
		Method:       dither.FloydSteinberg,
		Strength:     dither.DefaultStrength,
		Confidence:   detection.DefaultConfidence,
		DividerWidth: combine.DefaultDividerWidth,
		DividerColor: combine.DefaultDividerColor,
		Jobs:         runtime.NumCPU(),
	}
}

// Canvas returns the size of the composed image before any pre-rotation
func (o Options) Canvas() (int, int) {
	if o.Target == TargetPortrait {
		return o.Height, o.Width
	}
	return o.Width, o.Height
}

// NeedsPreRotation reports whether final images are rotated 90 degrees
// clockwise so a portrait-mounted color panel receives its native scan order
func (o Options) NeedsPreRotation() bool {
	return o.Target == TargetPortrait && o.Type.IsColor()
}

func (o Options) validate() error {
	if o.Width < 10 || o.Height < 10 {
		return fmt.Errorf("invalid target size %dx%d", o.Width, o.Height)
	}
	if _, err := dither.ForType(o.Type); err != nil {
		return err
	}
	if o.Target != TargetLandscape && o.Target != TargetPortrait {
		return fmt.Errorf("invalid target orientation %q", o.Target)
	}
	if len(o.Formats) == 0 {
		return fmt.Errorf("no output format given")
	}
	if o.Strength < dither.MinStrength || o.Strength > dither.MaxStrength {
		return fmt.Errorf("dither strength %.2f out of range", o.Strength)
	}
	if o.DividerWidth < 0 {
		return fmt.Errorf("invalid divider width %d", o.DividerWidth)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("no output directory given")
	}
	return nil
}

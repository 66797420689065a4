// Package detection locates people in photos so crops can be centered on
// them. Backends either run an external detector script or query a vision
// model; callers treat any failure as "no people detected".
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/sephiroth74/photoframe-processor/pkg/client"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// ErrDetection wraps every failure reported by a detector backend
var ErrDetection = errors.New("subject detection failed")

// DefaultConfidence is the default minimum confidence for a person
const DefaultConfidence = 0.6

// Detector locates people in an image
type Detector interface {
	Detect(ctx context.Context, img image.Image, threshold float64) (types.DetectionResult, error)
}

// NoopDetector never finds anyone
type NoopDetector struct{}

// Detect implements Detector
func (NoopDetector) Detect(_ context.Context, img image.Image, _ float64) (types.DetectionResult, error) {
	b := img.Bounds()
	return types.NoPeople(b.Dx(), b.Dy()), nil
}

// DefaultPrompt asks a vision model for every visible person
const DefaultPrompt = `You are a people locator for photo cropping.

Return JSON only:
{
  "people": [
    {"box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}, "confidence": 0.0}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- One entry per visible person, including partially visible people.
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- Boxes should tightly include each person.
- Confidence is your certainty in [0,1].
- If nobody is visible, return {"people": [], "description": "..."}.
- Do not guess real identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionDetector locates people with a vision model backend
type VisionDetector struct {
	client    client.VisionClient
	model     string
	prompt    string
	processor *processing.Processor

	// MaxDim bounds the longest side of the image sent to the model
	MaxDim int
}

// NewVisionDetector creates a detector using a vision client and model name
func NewVisionDetector(c client.VisionClient, model string) *VisionDetector {
	return &VisionDetector{
		client:    c,
		model:     model,
		prompt:    DefaultPrompt,
		processor: processing.NewProcessor(),
		MaxDim:    1024,
	}
}

// WithPrompt replaces the locating prompt
func (d *VisionDetector) WithPrompt(prompt string) *VisionDetector {
	d.prompt = prompt
	return d
}

// Detect implements Detector
func (d *VisionDetector) Detect(ctx context.Context, img image.Image, threshold float64) (types.DetectionResult, error) {
	b := img.Bounds()
	if b.Empty() {
		return types.DetectionResult{}, fmt.Errorf("%w: empty image", ErrDetection)
	}

	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.MaxDim, 85)
	if err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: prepare image: %v", ErrDetection, err)
	}

	analysis, err := d.client.LocatePeople(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	return FromPeople(analysis.People, b.Dx(), b.Dy(), threshold), nil
}

// FromPeople merges normalized person boxes at or above threshold into a
// detection for a w x h image. The subject center is the center of the
// union of all kept boxes.
func FromPeople(people []types.PersonDetection, w, h int, threshold float64) types.DetectionResult {
	var (
		union types.NormalizedBox
		count int
		best  float64
	)
	for _, p := range people {
		if p.Confidence < threshold {
			continue
		}
		box := normalizeBox(p.Box)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		if count == 0 {
			union = box
		} else {
			union = unionBox(union, box)
		}
		best = math.Max(best, p.Confidence)
		count++
	}
	if count == 0 {
		return types.NoPeople(w, h)
	}

	px := union.ToPixels(w, h)
	center := types.Point{X: px.X + px.W/2, Y: px.Y + px.H/2}
	return types.DetectionResult{
		Center:      center,
		Offset:      types.Point{X: center.X - w/2, Y: center.Y - h/2},
		BoundingBox: &px,
		Confidence:  best,
		PersonCount: count,
	}
}

func unionBox(a, b types.NormalizedBox) types.NormalizedBox {
	x0 := math.Min(a.X, b.X)
	y0 := math.Min(a.Y, b.Y)
	x1 := math.Max(a.X+a.W, b.X+b.W)
	y1 := math.Max(a.Y+a.H, b.Y+b.H)
	return types.NormalizedBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps a box inside the unit square
func normalizeBox(b types.NormalizedBox) types.NormalizedBox {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.NormalizedBox{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

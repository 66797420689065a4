package types

import (
	"fmt"
	"time"
)

// Box represents a bounding box in pixel coordinates
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// NormalizedBox represents a bounding box with coordinates in [0,1] range
type NormalizedBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToPixels converts a normalized box to pixel coordinates for a w x h image
func (b NormalizedBox) ToPixels(w, h int) Box {
	return Box{
		X: int(b.X*float64(w) + 0.5),
		Y: int(b.Y*float64(h) + 0.5),
		W: int(b.W*float64(w) + 0.5),
		H: int(b.H*float64(h) + 0.5),
	}
}

// Point is a pixel position
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DetectionResult is the output of a subject detector. It holds no reference to the image.
type DetectionResult struct {
	Center      Point   `json:"center"`
	Offset      Point   `json:"offset"`
	BoundingBox *Box    `json:"bounding_box,omitempty"`
	Confidence  float64 `json:"confidence"`
	PersonCount int     `json:"person_count"`
}

// HasPeople reports whether the detection found at least one person
func (d *DetectionResult) HasPeople() bool {
	return d != nil && d.PersonCount > 0
}

// NoPeople returns the fallback detection for a w x h image: centered, nobody found
func NoPeople(w, h int) DetectionResult {
	return DetectionResult{Center: Point{X: w / 2, Y: h / 2}}
}

// PersonDetection is a normalized person box returned by a vision model
type PersonDetection struct {
	Box        NormalizedBox `json:"box"`
	Confidence float64       `json:"confidence"`
}

// PeopleAnalysis contains the people found by a vision model
type PeopleAnalysis struct {
	People      []PersonDetection `json:"people"`
	Description string            `json:"description"`
}

// ProcessingType selects the display palette
type ProcessingType string

const (
	BlackWhite ProcessingType = "bw"
	SixColor   ProcessingType = "6c"
	SevenColor ProcessingType = "7c"
)

// ParseProcessingType parses a processing type name
func ParseProcessingType(s string) (ProcessingType, error) {
	switch ProcessingType(s) {
	case BlackWhite, SixColor, SevenColor:
		return ProcessingType(s), nil
	}
	return "", fmt.Errorf("unknown processing type: %s (use bw, 6c or 7c)", s)
}

// IsColor reports whether the type uses a color palette
func (t ProcessingType) IsColor() bool {
	return t == SixColor || t == SevenColor
}

// UnitKind classifies a processed unit
type UnitKind string

const (
	Landscape         UnitKind = "landscape"
	Portrait          UnitKind = "portrait"
	CombinedPortrait  UnitKind = "combined-portrait"
	CombinedLandscape UnitKind = "combined-landscape"
)

// ProcessingResult describes one completed unit
type ProcessingResult struct {
	InputPaths     []string          `json:"input_paths"`
	OutputPaths    map[string]string `json:"output_paths"`
	Kind           UnitKind          `json:"kind"`
	Elapsed        time.Duration     `json:"elapsed"`
	PeopleDetected bool              `json:"people_detected"`
	PeopleCount    int               `json:"people_count"`
	Reasoning      []string          `json:"reasoning,omitempty"`
}

// SkipReason explains why an input was not processed
type SkipReason string

const (
	SkipStandaloneExists SkipReason = "standalone output exists"
	SkipCombinedExists   SkipReason = "combined output exists"
	SkipUnpaired         SkipReason = "unpaired"
)

// SkippedResult records an input that was filtered out before processing
type SkippedResult struct {
	InputPath    string     `json:"input_path"`
	Reason       SkipReason `json:"reason"`
	ExistingPath string     `json:"existing_path,omitempty"`
}

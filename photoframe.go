// Package photoframe converts ordinary photos into images and binaries for
// low-color e-paper photo frames.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		photoframe "github.com/sephiroth74/photoframe-processor"
//		"github.com/sephiroth74/photoframe-processor/pkg/batch"
//	)
//
//	func main() {
//		opts := batch.DefaultOptions()
//		opts.OutputDir = "frames"
//
//		pf, err := photoframe.New(opts)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		report, err := pf.ProcessPaths(context.Background(), []string{"photos"})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%d converted, %d failed, %d skipped\n",
//			report.Summary.Succeeded, report.Summary.Failed, report.Summary.Skipped)
//	}
//
// Every photo goes through the same pipeline:
//
// 1. Orientation (pkg/orientation): EXIF rotation and portrait classification
// 2. Detection (pkg/detection): optional people locator used to aim the crop
// 3. Crop (pkg/cropper): aspect-ratio crop toward the subject and Lanczos resize
// 4. Optimizer (pkg/optimizer): optional per-image choice of dithering settings
// 5. Dithering (pkg/dither): reduction to the panel palette
// 6. Encoding (pkg/encoder, pkg/processing): images and hardware binaries
//
// Photos whose orientation does not match the panel are paired and composed
// side by side (pkg/combine). Outputs are named after a hash of the input
// file name, so repeated runs skip work that is already done (pkg/batch).
package photoframe

import (
	"context"
	"fmt"

	"github.com/sephiroth74/photoframe-processor/internal/config"
	"github.com/sephiroth74/photoframe-processor/pkg/batch"
	"github.com/sephiroth74/photoframe-processor/pkg/client"
	"github.com/sephiroth74/photoframe-processor/pkg/detection"
	"github.com/sephiroth74/photoframe-processor/pkg/llamacpp"
	"github.com/sephiroth74/photoframe-processor/pkg/ollama"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// Version of the photo frame processor
const Version = "1.0.0"

// PhotoFrame provides a high-level interface for converting photos
type PhotoFrame struct {
	processor *batch.Processor
}

// New creates a PhotoFrame from batch options
func New(opts batch.Options) (*PhotoFrame, error) {
	p, err := batch.New(opts)
	if err != nil {
		return nil, err
	}
	return &PhotoFrame{processor: p}, nil
}

// NewFromConfig creates a PhotoFrame from a configuration, including its
// people detector
func NewFromConfig(cfg *config.Config) (*PhotoFrame, error) {
	opts, err := cfg.ToBatchOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Detector, err = NewDetector(cfg.Detection); err != nil {
		return nil, err
	}
	return New(opts)
}

// NewDetector builds the configured people detector. It returns nil when
// detection is disabled.
func NewDetector(cfg config.DetectionConfig) (detection.Detector, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		visionClient client.VisionClient
		err          error
	)
	switch cfg.Backend {
	case config.BackendScript:
		if cfg.Script == "" {
			return nil, fmt.Errorf("no detector script configured")
		}
		return detection.NewScriptDetector(cfg.Python, cfg.Script), nil
	case config.BackendOllama:
		visionClient, err = ollama.NewClient(cfg.OllamaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
	case config.BackendLlamaCpp:
		visionClient, err = llamacpp.NewClient(cfg.LlamaCppURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown detection backend: %s (use script, ollama or llamacpp)", cfg.Backend)
	}
	return detection.NewVisionDetector(visionClient, cfg.Model), nil
}

// Processor returns the underlying batch processor
func (pf *PhotoFrame) Processor() *batch.Processor {
	return pf.processor
}

// ProcessPaths converts every image found under paths
func (pf *PhotoFrame) ProcessPaths(ctx context.Context, paths []string) (batch.Report, error) {
	return pf.processor.Run(ctx, paths)
}

// ProcessFile converts a single image on its own, without pairing
func (pf *PhotoFrame) ProcessFile(ctx context.Context, path string) (*types.ProcessingResult, error) {
	r := pf.processor.ProcessFile(ctx, path)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

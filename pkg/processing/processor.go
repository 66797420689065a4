package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/encoder"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

var (
	// ErrDecode is returned when an input cannot be decoded as an image
	ErrDecode = errors.New("cannot decode image")
	// ErrWrite is returned when an output file cannot be written
	ErrWrite = errors.New("cannot write output")
)

// Format is an output file format
type Format string

const (
	FormatBMP    Format = "bmp"
	FormatBin    Format = "bin"
	FormatBin4   Format = "bin4"
	FormatJPG    Format = "jpg"
	FormatPNG    Format = "png"
	FormatWebP   Format = "webp"
	FormatHeader Format = "h"
)

// Formats lists every supported output format
func Formats() []Format {
	return []Format{FormatBMP, FormatBin, FormatBin4, FormatJPG, FormatPNG, FormatWebP, FormatHeader}
}

// ParseFormat parses a single format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBMP, FormatBin, FormatBin4, FormatJPG, FormatPNG, FormatWebP, FormatHeader:
		return f, nil
	case "jpeg":
		return FormatJPG, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// ParseFormats parses a comma-separated format list, dropping duplicates
func ParseFormats(s string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no output format given")
	}
	return formats, nil
}

// Ext returns the file extension written for the format
func (f Format) Ext() string {
	if f == FormatBin4 {
		return "bin"
	}
	return string(f)
}

// IsBinary reports whether the format is a raw hardware layout
func (f Format) IsBinary() bool {
	return f == FormatBin || f == FormatBin4 || f == FormatHeader
}

// Processor handles image loading and output encoding
type Processor struct {
	JPEGQuality  int
	WebPQuality  int
	WebPLossless bool
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{JPEGQuality: 95, WebPQuality: 90, WebPLossless: true}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown format for %s", ErrDecode, path)
}

// EncodeOptions carries what the binary formats need besides the pixels
type EncodeOptions struct {
	Type         types.ProcessingType
	SourceName   string
	VariableName string
}

// Encode renders a processed image in the given format
func (p *Processor) Encode(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("bmp encode: %w", err)
		}
	case FormatJPG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: p.WebPLossless, Quality: float32(p.WebPQuality)}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case FormatBin:
		return encodeBinary(img, opts.Type)
	case FormatBin4:
		return encoder.EncodeNative4Bit(img)
	case FormatHeader:
		data, err := encodeBinary(img, opts.Type)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		name := opts.VariableName
		if name == "" {
			name = utils.SanitizeIdentifier(utils.Stem(opts.SourceName))
		}
		return []byte(encoder.CHeader(data, name, opts.SourceName, b.Dx(), b.Dy())), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", f)
	}
	return buf.Bytes(), nil
}

// encodeBinary picks the byte layout for the display type: RRRGGGBB for
// black and white panels and the banded demo codes for color panels
func encodeBinary(img image.Image, t types.ProcessingType) ([]byte, error) {
	if t.IsColor() {
		return encoder.EncodeDemoBitmap(img)
	}
	return encoder.Encode8Bit(img)
}

// Save encodes img and writes it atomically to path
func (p *Processor) Save(img image.Image, path string, f Format, opts EncodeOptions) error {
	data, err := p.Encode(img, f, opts)
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	saver := *p
	saver.JPEGQuality, saver.WebPQuality, saver.WebPLossless = quality, quality, lossless
	return saver.Save(img, path, f, EncodeOptions{SourceName: path})
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

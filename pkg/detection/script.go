package detection

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// ScriptDetector runs an external detector script that takes --image and
// --confidence and prints "key: a,b" lines (imagesize, box, center, offset)
type ScriptDetector struct {
	Python  string
	Script  string
	Timeout time.Duration
}

// NewScriptDetector creates a detector running script with the given interpreter
func NewScriptDetector(python, script string) *ScriptDetector {
	if python == "" {
		python = "python3"
	}
	return &ScriptDetector{Python: python, Script: script, Timeout: 60 * time.Second}
}

type scriptDetection struct {
	Box        []int   `json:"box"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type scriptOutput struct {
	ImageSize struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"imagesize"`
	Box        []int             `json:"box"`
	Center     []int             `json:"center"`
	Offset     []int             `json:"offset"`
	Detections []scriptDetection `json:"detections"`
	Error      string            `json:"error"`
}

// Detect implements Detector. The image is handed to the script as a
// temporary JPEG so the script sees exactly the oriented pixels.
func (d *ScriptDetector) Detect(ctx context.Context, img image.Image, threshold float64) (types.DetectionResult, error) {
	b := img.Bounds()
	if b.Empty() {
		return types.DetectionResult{}, fmt.Errorf("%w: empty image", ErrDetection)
	}

	f, err := os.CreateTemp("", "photoframe-detect-*.jpg")
	if err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		f.Close()
		return types.DetectionResult{}, fmt.Errorf("%w: encode temporary image: %v", ErrDetection, err)
	}
	if err := f.Close(); err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.Python, d.Script,
		"--image", tmp,
		"--confidence", strconv.FormatFloat(threshold, 'f', 2, 64),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: %s: %v: %s", ErrDetection, d.Script, err, strings.TrimSpace(stderr.String()))
	}
	return ParseScriptOutput(out, b.Dx(), b.Dy())
}

// noPeopleMarker is printed by the detector script when nobody was found
const noPeopleMarker = "No people detected"

// ParseScriptOutput converts detector script output into a detection for a
// w x h image, scaling coordinates when the script saw a different size.
// The script prints "imagesize: W,H", "box: x0,y0,x1,y1", "center: x,y" and
// "offset: dx,dy" lines; a JSON object with the same keys is also accepted.
func ParseScriptOutput(data []byte, w, h int) (types.DetectionResult, error) {
	if start := jsonStart(data); start >= 0 {
		return parseScriptJSON(data[start:], w, h)
	}
	return parseScriptText(data, w, h)
}

// jsonStart returns the offset of a line starting with '{', or -1
func jsonStart(data []byte) int {
	offset := 0
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if trimmed := bytes.TrimLeft(line, " \t"); len(trimmed) > 0 && trimmed[0] == '{' {
			return offset + len(line) - len(trimmed)
		}
		offset += len(line)
	}
	return -1
}

func parseScriptText(data []byte, w, h int) (types.DetectionResult, error) {
	var out scriptOutput
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, noPeopleMarker):
			return types.NoPeople(w, h), nil
		case strings.HasPrefix(line, "Error:"):
			return types.DetectionResult{}, fmt.Errorf("%w: %s", ErrDetection, line)
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		var dst *[]int
		switch strings.TrimSpace(key) {
		case "imagesize":
			size, err := parseInts(value, 2)
			if err != nil {
				return types.DetectionResult{}, err
			}
			out.ImageSize.Width, out.ImageSize.Height = size[0], size[1]
			continue
		case "box":
			dst = &out.Box
		case "center":
			dst = &out.Center
		case "offset":
			dst = &out.Offset
		default:
			continue
		}
		n := 2
		if dst == &out.Box {
			n = 4
		}
		values, err := parseInts(value, n)
		if err != nil {
			return types.DetectionResult{}, err
		}
		*dst = values
	}
	if err := scanner.Err(); err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	if len(out.Box) == 0 && len(out.Center) == 0 {
		return types.DetectionResult{}, fmt.Errorf("%w: no detection in script output", ErrDetection)
	}
	// The text format reports the union of all people as one subject
	return out.toDetection(w, h, 1, 0)
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: expected %d values in %q", ErrDetection, n, strings.TrimSpace(s))
	}
	values := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value %q", ErrDetection, strings.TrimSpace(p))
		}
		values[i] = v
	}
	return values, nil
}

func parseScriptJSON(data []byte, w, h int) (types.DetectionResult, error) {
	var out scriptOutput
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return types.DetectionResult{}, fmt.Errorf("%w: invalid detector output: %v", ErrDetection, err)
	}

	if len(out.Detections) == 0 {
		if out.Error != "" && len(out.Box) == 0 {
			return types.DetectionResult{}, fmt.Errorf("%w: %s", ErrDetection, out.Error)
		}
		return types.NoPeople(w, h), nil
	}

	var best float64
	for _, det := range out.Detections {
		best = max(best, det.Confidence)
	}
	return out.toDetection(w, h, len(out.Detections), best)
}

// toDetection scales the union box and center to a w x h image
func (out scriptOutput) toDetection(w, h, people int, confidence float64) (types.DetectionResult, error) {
	if len(out.Box) != 4 || len(out.Center) != 2 {
		return types.DetectionResult{}, fmt.Errorf("%w: malformed box or center", ErrDetection)
	}

	sx, sy := 1.0, 1.0
	if out.ImageSize.Width > 0 && out.ImageSize.Height > 0 {
		sx = float64(w) / float64(out.ImageSize.Width)
		sy = float64(h) / float64(out.ImageSize.Height)
	}
	scaleX := func(v int) int { return int(float64(v)*sx + 0.5) }
	scaleY := func(v int) int { return int(float64(v)*sy + 0.5) }

	box := types.Box{
		X: scaleX(out.Box[0]),
		Y: scaleY(out.Box[1]),
		W: scaleX(out.Box[2] - out.Box[0]),
		H: scaleY(out.Box[3] - out.Box[1]),
	}
	center := types.Point{X: scaleX(out.Center[0]), Y: scaleY(out.Center[1])}

	return types.DetectionResult{
		Center:      center,
		Offset:      types.Point{X: center.X - w/2, Y: center.Y - h/2},
		BoundingBox: &box,
		Confidence:  confidence,
		PersonCount: people,
	}, nil
}

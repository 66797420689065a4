package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/sephiroth74/photoframe-processor/pkg/dither"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// fakeDetector reports one person in the right half, or fails
type fakeDetector struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image, _ float64) (types.DetectionResult, error) {
	d.calls.Add(1)
	if d.err != nil {
		return types.DetectionResult{}, d.err
	}
	b := img.Bounds()
	box := types.Box{X: b.Dx() * 3 / 4, Y: 0, W: b.Dx() / 4, H: b.Dy()}
	center := types.Point{X: box.X + box.W/2, Y: b.Dy() / 2}
	return types.DetectionResult{
		Center:      center,
		Offset:      types.Point{X: center.X - b.Dx()/2},
		BoundingBox: &box,
		Confidence:  0.9,
		PersonCount: 1,
	}, nil
}

func testOptions(out string) Options {
	opts := DefaultOptions()
	opts.OutputDir = out
	opts.Width, opts.Height = 40, 24
	opts.Formats = []processing.Format{processing.FormatBMP, processing.FormatBin}
	opts.Jobs = 2
	opts.Seed = 1
	return opts
}

// setupInputs writes two landscapes, three portraits and one corrupt file
func setupInputs(t *testing.T) string {
	t.Helper()
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "land1.png"), 80, 48)
	writeImage(t, filepath.Join(in, "land2.jpg"), 90, 50)
	writeImage(t, filepath.Join(in, "portraits", "p1.png"), 48, 80)
	writeImage(t, filepath.Join(in, "portraits", "p2.png"), 50, 90)
	writeImage(t, filepath.Join(in, "portraits", "p3.jpg"), 30, 60)
	touch(t, filepath.Join(in, "broken.jpg"))
	return in
}

func TestRun(t *testing.T) {
	in := setupInputs(t)
	out := t.TempDir()

	p, err := New(testOptions(out))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var units atomic.Int32
	p.OnUnit(func(UnitResult, *State) { units.Add(1) })

	report, err := p.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s := report.Summary
	if s.Discovered != 6 || s.Units != 4 {
		t.Fatalf("expected 6 inputs in 4 units, got %+v", s)
	}
	if s.Succeeded != 3 || s.Failed != 1 || s.Skipped != 1 || s.PairsCombined != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.PortraitsFound != 3 || s.LandscapesFound != 3 {
		t.Errorf("unexpected classification %+v", s)
	}
	if units.Load() != 4 {
		t.Errorf("OnUnit called %d times", units.Load())
	}
	if len(s.Failures) != 1 || !strings.HasSuffix(s.Failures[0].Inputs[0], "broken.jpg") {
		t.Errorf("unexpected failures %+v", s.Failures)
	}
	// broken.jpg sorts first among the single images
	if !errors.Is(report.Results[0].Err, processing.ErrDecode) {
		t.Errorf("expected the corrupt file to fail with ErrDecode, got %v", report.Results[0].Err)
	}
	if s.Skips[0].Reason != types.SkipUnpaired {
		t.Errorf("expected the odd portrait to be unpaired, got %+v", s.Skips[0])
	}

	bmpPath := filepath.Join(out, "bmp", Hash("land1.png")+".bmp")
	img, err := imaging.Open(bmpPath)
	if err != nil {
		t.Fatalf("missing output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 24 {
		t.Errorf("output size %dx%d, want 40x24", b.Dx(), b.Dy())
	}
	if !dither.SixColor.Contains(img.At(5, 5)) {
		t.Error("output pixel is not a palette color")
	}

	bin, err := os.ReadFile(filepath.Join(out, "bin", Hash("land2.jpg")+".bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(bin) != 40*24 {
		t.Errorf("binary length %d, want %d", len(bin), 40*24)
	}

	var combined *types.ProcessingResult
	for _, r := range report.Results {
		if r.OK() && r.Result.Kind == types.CombinedPortrait {
			combined = r.Result
		}
	}
	if combined == nil {
		t.Fatal("no combined result")
	}
	want := CombinedName(combined.InputPaths[0], combined.InputPaths[1], processing.FormatBMP)
	if filepath.Base(combined.OutputPaths["bmp"]) != want {
		t.Errorf("combined output %s, want %s", combined.OutputPaths["bmp"], want)
	}
	if _, err := os.Stat(combined.OutputPaths["bin"]); err != nil {
		t.Errorf("combined binary not written: %v", err)
	}
}

func TestRunSkipsExistingOutputs(t *testing.T) {
	in := setupInputs(t)
	out := t.TempDir()
	p, err := New(testOptions(out))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), []string{in}); err != nil {
		t.Fatal(err)
	}

	again, err := p.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	s := again.Summary
	// Only the corrupt file runs again. The unpaired portrait stays alone.
	if s.Units != 1 || s.Failed != 1 || s.Skipped != 5 {
		t.Errorf("unexpected second run %+v", s)
	}
	reasons := make(map[types.SkipReason]int)
	for _, sk := range s.Skips {
		reasons[sk.Reason]++
	}
	if reasons[types.SkipStandaloneExists] != 2 || reasons[types.SkipCombinedExists] != 2 || reasons[types.SkipUnpaired] != 1 {
		t.Errorf("unexpected skip reasons %v", reasons)
	}

	opts := testOptions(out)
	opts.Force = true
	forced, _ := New(opts)
	r, err := forced.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	if r.Summary.Units != 4 {
		t.Errorf("force must ignore existing outputs, got %+v", r.Summary)
	}
}

func TestRunDryRun(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "photo.png"), 64, 40)
	out := filepath.Join(t.TempDir(), "out")

	opts := testOptions(out)
	opts.DryRun = true
	opts.Debug = true
	p, _ := New(opts)
	report, err := p.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Succeeded != 1 || !report.Summary.DryRun {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	want := filepath.Join(out, "bmp", "812716e3.bmp")
	if got := report.Results[0].Result.OutputPaths["bmp"]; got != want {
		t.Errorf("intended output %s, want %s", got, want)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run must not write anything")
	}
}

func TestRunDetectionAndOptimizer(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "group.png"), 120, 48)
	out := t.TempDir()

	det := &fakeDetector{}
	opts := testOptions(out)
	opts.Detector = det
	opts.AutoOptimize = true
	opts.Debug = true
	p, _ := New(opts)
	report, err := p.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	r := report.Results[0]
	if !r.OK() {
		t.Fatalf("unit failed: %v", r.Err)
	}
	if !r.Result.PeopleDetected || r.Result.PeopleCount != 1 || det.calls.Load() != 1 {
		t.Errorf("detection not recorded: %+v", r.Result)
	}
	if len(r.Result.Reasoning) == 0 {
		t.Error("expected optimizer reasoning")
	}
	if _, err := os.Stat(filepath.Join(out, "debug", "debug_"+Hash("group.png")+".jpg")); err != nil {
		t.Errorf("debug overlay not written: %v", err)
	}

	// A failing detector degrades to no people
	opts.Detector = &fakeDetector{err: errors.New("detector offline")}
	opts.Force = true
	opts.Debug = false
	p, _ = New(opts)
	report, _ = p.Run(context.Background(), []string{in})
	if r := report.Results[0]; !r.OK() || r.Result.PeopleDetected {
		t.Errorf("expected success without people, got %+v / %v", r.Result, r.Err)
	}
}

func TestRunPortraitTarget(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "left.png"), 80, 48)
	writeImage(t, filepath.Join(in, "right.png"), 80, 50)
	writeImage(t, filepath.Join(in, "tall.png"), 48, 80)
	out := t.TempDir()

	opts := testOptions(out)
	opts.Target = TargetPortrait
	opts.Formats = []processing.Format{processing.FormatPNG}
	p, _ := New(opts)
	report, err := p.Run(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	s := report.Summary
	if s.Succeeded != 2 || s.PairsCombined != 1 || s.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}

	for _, r := range report.Results {
		img, err := imaging.Open(r.Result.OutputPaths["png"])
		if err != nil {
			t.Fatal(err)
		}
		// Color panels mounted upright get pre-rotated output in native size
		if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 24 {
			t.Errorf("%s: size %dx%d, want 40x24", r.Result.Kind, b.Dx(), b.Dy())
		}
		if r.Result.Kind != types.Portrait && r.Result.Kind != types.CombinedLandscape {
			t.Errorf("unexpected kind %s", r.Result.Kind)
		}
	}
}

func TestRunJSONProgress(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeImage(t, filepath.Join(in, name), 60, 40)
	}
	var buf bytes.Buffer
	opts := testOptions(t.TempDir())
	opts.Type = types.BlackWhite
	p, _ := New(opts)
	p.WithEmitter(NewEmitter(&buf))
	if _, err := p.Run(context.Background(), []string{in}); err != nil {
		t.Fatal(err)
	}

	lines := decodeLines(t, &buf)
	counts := make(map[string]int)
	for _, l := range lines {
		counts[l["type"].(string)]++
	}
	if counts[TypeFileCompleted] != 3 || counts[TypeSummary] != 1 || counts[TypeProgress] < 1 {
		t.Errorf("unexpected message counts %v", counts)
	}
	if last := lines[len(lines)-1]; last["type"] != TypeSummary || last["processed"] != 3.0 {
		t.Errorf("expected summary last, got %v", last)
	}
	var last float64
	var finals int
	for _, l := range lines {
		if l["type"] != TypeProgress {
			continue
		}
		current := l["current"].(float64)
		if current <= last {
			t.Errorf("progress went from %v to %v", last, current)
		}
		last = current
		if current == l["total"] {
			finals++
		}
	}
	if finals != 1 || last != 3.0 {
		t.Errorf("expected one final 100%% progress message, got %d ending at %v", finals, last)
	}
}

func TestRunJSONProgressNoUnits(t *testing.T) {
	var buf bytes.Buffer
	p, _ := New(testOptions(t.TempDir()))
	p.WithEmitter(NewEmitter(&buf))
	if _, err := p.Run(context.Background(), []string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 2 || lines[0]["type"] != TypeProgress || lines[1]["type"] != TypeSummary {
		t.Errorf("expected one progress and the summary, got %v", lines)
	}
}

func TestNewValidation(t *testing.T) {
	bad := []func(*Options){
		func(o *Options) { o.Width = 5 },
		func(o *Options) { o.Type = "9c" },
		func(o *Options) { o.Formats = nil },
		func(o *Options) { o.Strength = 3 },
		func(o *Options) { o.Target = "diagonal" },
		func(o *Options) { o.OutputDir = "" },
	}
	for i, mutate := range bad {
		opts := DefaultOptions()
		mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if _, err := ParseTargetOrientation("Portrait"); err != nil {
		t.Error(err)
	}
}

func TestQuantizerSelection(t *testing.T) {
	q, err := newQuantizer(types.BlackWhite, dither.FloydSteinberg, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.(blackWhite); !ok {
		t.Errorf("expected luma path for black and white, got %T", q)
	}
	q, _ = newQuantizer(types.BlackWhite, dither.Atkinson, 1)
	if d, ok := q.(*dither.Ditherer); !ok || d.Method() != dither.Atkinson {
		t.Errorf("expected palette ditherer, got %T", q)
	}
	if _, err := newQuantizer(types.SixColor, dither.Ordered, 2.5); err == nil {
		t.Error("expected strength error")
	}
}

func BenchmarkRun(b *testing.B) {
	in := b.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writeImage(b, filepath.Join(in, name), 200, 120)
	}
	opts := testOptions(b.TempDir())
	opts.Force = true
	opts.DryRun = true
	p, _ := New(opts)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Run(context.Background(), []string{in})
	}
}

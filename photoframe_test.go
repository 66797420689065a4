package photoframe

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/sephiroth74/photoframe-processor/internal/config"
	"github.com/sephiroth74/photoframe-processor/pkg/batch"
	"github.com/sephiroth74/photoframe-processor/pkg/detection"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// createTestImage creates a simple test image with a bright subject in the center
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func testOptions(out string) batch.Options {
	opts := batch.DefaultOptions()
	opts.OutputDir = out
	opts.Width, opts.Height = 80, 48
	opts.Jobs = 1
	return opts
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version || Version == "" {
		t.Errorf("unexpected version %q", GetVersion())
	}
}

func TestNew(t *testing.T) {
	pf, err := New(testOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if pf.Processor() == nil {
		t.Error("processor component is nil")
	}

	bad := testOptions(t.TempDir())
	bad.Width = 0
	if _, err := New(bad); err == nil {
		t.Error("expected error for invalid options")
	}
}

func TestProcessFile(t *testing.T) {
	in := filepath.Join(t.TempDir(), "tall.png")
	if err := imaging.Save(createTestImage(60, 100), in); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	pf, err := New(testOptions(out))
	if err != nil {
		t.Fatal(err)
	}
	res, err := pf.ProcessFile(context.Background(), in)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.Kind != types.Portrait {
		t.Errorf("kind = %s, want portrait", res.Kind)
	}

	img, err := imaging.Open(res.OutputPaths["bmp"])
	if err != nil {
		t.Fatal(err)
	}
	// A single portrait swaps the canvas instead of being paired
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 80 {
		t.Errorf("output %dx%d, want 48x80", b.Dx(), b.Dy())
	}
	if fi, err := os.Stat(res.OutputPaths["bin"]); err != nil || fi.Size() != 48*80 {
		t.Errorf("unexpected binary output: %v", err)
	}

	if _, err := pf.ProcessFile(context.Background(), filepath.Join(out, "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProcessPaths(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		if err := imaging.Save(createTestImage(100, 60), filepath.Join(in, name)); err != nil {
			t.Fatal(err)
		}
	}
	pf, _ := New(testOptions(t.TempDir()))
	report, err := pf.ProcessPaths(context.Background(), []string{in})
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Succeeded != 2 || report.Summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}

	if _, err := pf.ProcessPaths(context.Background(), []string{filepath.Join(in, "nope")}); err == nil {
		t.Error("expected input error")
	}
}

func TestNewDetector(t *testing.T) {
	cfg := config.Default().Detection

	d, err := NewDetector(cfg)
	if err != nil || d != nil {
		t.Errorf("disabled detection must yield no detector, got %v, %v", d, err)
	}

	cfg.Enabled = true
	cfg.Script = "find_subject.py"
	d, err = NewDetector(cfg)
	if _, ok := d.(*detection.ScriptDetector); err != nil || !ok {
		t.Errorf("expected script detector, got %T, %v", d, err)
	}

	cfg.Backend = config.BackendOllama
	d, err = NewDetector(cfg)
	if _, ok := d.(*detection.VisionDetector); err != nil || !ok {
		t.Errorf("expected vision detector, got %T, %v", d, err)
	}

	cfg.Backend = config.BackendLlamaCpp
	if _, err := NewDetector(cfg); err != nil {
		t.Errorf("llama.cpp backend failed: %v", err)
	}

	cfg.Backend = config.BackendOllama
	cfg.OllamaURL = "localhost"
	if _, err := NewDetector(cfg); err == nil {
		t.Error("expected error for an invalid Ollama URL")
	}

	cfg.Backend = "cloud"
	if _, err := NewDetector(cfg); err == nil {
		t.Error("expected error for an unknown backend")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	if _, err := NewFromConfig(cfg); err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	cfg.Display.Type = "2c"
	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected configuration error")
	}
}

func BenchmarkProcessFile(b *testing.B) {
	in := filepath.Join(b.TempDir(), "photo.png")
	if err := imaging.Save(createTestImage(400, 300), in); err != nil {
		b.Fatal(err)
	}
	opts := testOptions(b.TempDir())
	opts.DryRun = true
	pf, _ := New(opts)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pf.ProcessFile(context.Background(), in)
	}
}

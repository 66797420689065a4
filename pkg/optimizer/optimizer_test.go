package optimizer

import (
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"github.com/sephiroth74/photoframe-processor/pkg/dither"
)

func createSolidImage(width, height int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createCheckerImage alternates black and white pixels so every interior
// pixel is an edge
func createCheckerImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyzeSolid(t *testing.T) {
	s := Analyze(createSolidImage(10, 10, color.RGBA{255, 255, 255, 255}))
	if s.Brightness < 0.99 {
		t.Errorf("expected brightness near 1, got %f", s.Brightness)
	}
	if s.Contrast != 0 || s.Saturation != 0 || s.Detail != 0 {
		t.Errorf("expected flat stats, got %+v", s)
	}
	if s.Hue != Neutral {
		t.Errorf("expected neutral hue for white, got %s", s.Hue)
	}

	black := Analyze(createSolidImage(10, 10, color.RGBA{0, 0, 0, 255}))
	if black.Brightness != 0 || black.Saturation != 0 {
		t.Errorf("expected dark unsaturated stats, got %+v", black)
	}
}

func TestAnalyzeChecker(t *testing.T) {
	s := Analyze(createCheckerImage(10, 10))
	if s.Contrast < 0.99 {
		t.Errorf("expected contrast near 1, got %f", s.Contrast)
	}
	if !almostEqual(s.Detail, 1) {
		t.Errorf("expected every interior pixel to be an edge, got %f", s.Detail)
	}
}

func TestAnalyzeHue(t *testing.T) {
	tests := []struct {
		c    color.RGBA
		want Hue
	}{
		{color.RGBA{200, 20, 20, 255}, RedHue},
		{color.RGBA{20, 200, 20, 255}, GreenHue},
		{color.RGBA{20, 20, 200, 255}, BlueHue},
		{color.RGBA{120, 20, 20, 255}, Neutral},
		{color.RGBA{200, 200, 20, 255}, Neutral},
	}
	for _, tt := range tests {
		if got := Analyze(createSolidImage(4, 4, tt.c)).Hue; got != tt.want {
			t.Errorf("Analyze(%v).Hue = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestAnalyzeSmallImageDetail(t *testing.T) {
	if d := Analyze(createCheckerImage(2, 2)).Detail; d != 0 {
		t.Errorf("expected zero detail without interior pixels, got %f", d)
	}
	if s := Analyze(image.NewRGBA(image.Rect(0, 0, 0, 0))); s.Hue != Neutral {
		t.Errorf("expected neutral stats for empty image, got %+v", s)
	}
}

func TestOptimizeMethod(t *testing.T) {
	tests := []struct {
		name   string
		stats  Stats
		people int
		want   dither.Method
	}{
		{"pastel portrait", Stats{Brightness: 0.6, Saturation: 0.3, Contrast: 0.5}, 1, dither.Atkinson},
		{"detailed portrait", Stats{Brightness: 0.5, Saturation: 0.5, Contrast: 0.5, Detail: 0.3}, 2, dither.JarvisJudiceNinke},
		{"dark portrait", Stats{Brightness: 0.2, Saturation: 0.5, Contrast: 0.5, Detail: 0.1}, 1, dither.Stucki},
		{"plain portrait", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.5, Detail: 0.1}, 1, dither.FloydSteinberg},
		{"monochrome scene", Stats{Brightness: 0.3, Saturation: 0.1, Contrast: 0.5}, 0, dither.Ordered},
		{"complex scene", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.5, Detail: 0.4}, 0, dither.Stucki},
		{"pastel scene", Stats{Brightness: 0.6, Saturation: 0.3, Contrast: 0.5}, 0, dither.Atkinson},
		{"vibrant scene", Stats{Brightness: 0.4, Saturation: 0.6, Contrast: 0.5}, 0, dither.JarvisJudiceNinke},
		{"plain scene", Stats{Brightness: 0.4, Saturation: 0.3, Contrast: 0.5}, 0, dither.FloydSteinberg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Optimize(tt.stats, tt.people, false).Method; got != tt.want {
				t.Errorf("Method = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimizeStrength(t *testing.T) {
	tests := []struct {
		name   string
		stats  Stats
		people int
		want   float64
	}{
		{"pastel", Stats{Brightness: 0.6, Saturation: 0.3}, 0, 0.8},
		{"dark portrait", Stats{Brightness: 0.2, Saturation: 0.5}, 1, 0.7},
		{"bright portrait", Stats{Brightness: 0.8, Saturation: 0.5}, 1, 1.0},
		{"portrait", Stats{Brightness: 0.5, Saturation: 0.5}, 1, 0.9},
		{"detailed scene", Stats{Brightness: 0.4, Saturation: 0.5, Detail: 0.6}, 0, 1.3},
		{"monochrome scene", Stats{Brightness: 0.3, Saturation: 0.1}, 0, 1.1},
		{"scene", Stats{Brightness: 0.4, Saturation: 0.5}, 0, 1.0},
	}
	for _, tt := range tests {
		if got := Optimize(tt.stats, tt.people, false).Strength; !almostEqual(got, tt.want) {
			t.Errorf("%s: Strength = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestOptimizeContrast(t *testing.T) {
	tests := []struct {
		name   string
		stats  Stats
		people int
		want   float64
	}{
		{"pastel", Stats{Brightness: 0.6, Saturation: 0.3, Contrast: 0.1}, 0, 0},
		{"flat portrait", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.1}, 1, 0.10},
		{"flat scene", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.1}, 0, 0.15},
		{"low portrait", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.3}, 1, 0.05},
		{"low scene", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.3}, 0, 0.10},
		{"harsh portrait", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.9}, 1, -0.20},
		{"harsh scene", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.9}, 0, -0.15},
		{"normal", Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.5}, 0, -0.10},
	}
	for _, tt := range tests {
		if got := Optimize(tt.stats, tt.people, false).Contrast; !almostEqual(got, tt.want) {
			t.Errorf("%s: Contrast = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestOptimizeAutoColor(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  bool
	}{
		{"pastel", Stats{Brightness: 0.6, Saturation: 0.3}, false},
		{"dark colorful", Stats{Brightness: 0.2, Saturation: 0.5}, true},
		{"dark monochrome", Stats{Brightness: 0.2, Saturation: 0.1}, false},
		{"washed out", Stats{Brightness: 0.4, Saturation: 0.18}, true},
		{"normal", Stats{Brightness: 0.4, Saturation: 0.5}, false},
	}
	for _, tt := range tests {
		if got := Optimize(tt.stats, 0, false).AutoColor; got != tt.want {
			t.Errorf("%s: AutoColor = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOptimizeColorDisplayAdjustments(t *testing.T) {
	mono := Stats{Brightness: 0.4, Saturation: 0.1, Contrast: 0.5, Hue: Neutral}
	if got := Optimize(mono, 1, true).Strength; !almostEqual(got, 1.1) {
		t.Errorf("monochrome portrait on color display: got %f, want 1.1", got)
	}

	red := Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.5, Hue: RedHue}
	if got := Optimize(red, 0, true).Strength; !almostEqual(got, 0.9) {
		t.Errorf("red scene: got %f, want 0.9", got)
	}

	blue := Stats{Brightness: 0.4, Saturation: 0.5, Contrast: 0.5, Hue: BlueHue}
	if got := Optimize(blue, 0, true).Strength; !almostEqual(got, 1.1) {
		t.Errorf("blue scene: got %f, want 1.1", got)
	}
	if got := Optimize(blue, 0, false).Strength; !almostEqual(got, 1.0) {
		t.Errorf("blue scene on b/w display should not be adjusted, got %f", got)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	s := Analyze(createCheckerImage(16, 12))
	a := Optimize(s, 2, true)
	b := Optimize(s, 2, true)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Optimize is not deterministic:\n%+v\n%+v", a, b)
	}
	if len(a.Reasoning) == 0 {
		t.Error("expected reasoning lines")
	}
}

func TestContrastPercent(t *testing.T) {
	tests := []struct {
		c    float64
		want int
	}{
		{0.15, 15},
		{-0.20, -20},
		{0.05, 5},
		{0, 0},
	}
	for _, tt := range tests {
		if got := (Result{Contrast: tt.c}).ContrastPercent(); got != tt.want {
			t.Errorf("ContrastPercent(%f) = %d, want %d", tt.c, got, tt.want)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	img := createCheckerImage(800, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Analyze(img)
	}
}

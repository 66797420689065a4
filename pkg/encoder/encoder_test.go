package encoder

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
)

func createSolidImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestRGBTo8Bit(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    byte
	}{
		{255, 255, 255, 0xFF},
		{0, 0, 0, 0x00},
		{255, 0, 0, 0xE0},
		{0, 255, 0, 0x1C},
		{0, 0, 255, 0x03},
		{252, 252, 0, 0xFC},
	}
	for _, tt := range tests {
		if got := RGBTo8Bit(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("RGBTo8Bit(%d,%d,%d) = 0x%02X, want 0x%02X", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestDecode8Bit(t *testing.T) {
	tests := []struct {
		in      byte
		r, g, b uint8
	}{
		{0xFF, 255, 255, 255},
		{0x00, 0, 0, 0},
		{0xE0, 255, 0, 0},
		{0x1C, 0, 255, 0},
		{0x03, 0, 0, 255},
	}
	for _, tt := range tests {
		r, g, b := Decode8Bit(tt.in)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("Decode8Bit(0x%02X) = (%d,%d,%d), want (%d,%d,%d)", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestEncode8BitLength(t *testing.T) {
	sizes := [][2]int{{1, 1}, {3, 5}, {20, 20}, {800, 480}}
	for _, sz := range sizes {
		data, err := Encode8Bit(createSolidImage(sz[0], sz[1], color.NRGBA{10, 200, 30, 255}))
		if err != nil {
			t.Fatalf("Encode8Bit(%dx%d) failed: %v", sz[0], sz[1], err)
		}
		if len(data) != sz[0]*sz[1] {
			t.Errorf("Encode8Bit(%dx%d) produced %d bytes", sz[0], sz[1], len(data))
		}
	}
}

func TestValidateLength(t *testing.T) {
	if err := ValidateLength(400, 20, 20); err != nil {
		t.Errorf("expected valid length, got %v", err)
	}
	err := ValidateLength(100, 20, 20)
	if err == nil {
		t.Fatal("expected error for 100 bytes at 20x20")
	}
	if !errors.Is(err, ErrLength) {
		t.Errorf("expected ErrLength, got %v", err)
	}
	if !strings.Contains(err.Error(), "expected 400") {
		t.Errorf("error should mention the expected size: %v", err)
	}
	if err := ValidatePackedLength(200, 20, 20); err != nil {
		t.Errorf("expected valid packed length, got %v", err)
	}
	if err := ValidatePackedLength(400, 20, 20); !errors.Is(err, ErrLength) {
		t.Errorf("expected ErrLength for packed buffer, got %v", err)
	}
}

func TestNativeCode(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    byte
	}{
		{"black", 0, 0, 0, NativeBlack},
		{"white", 255, 255, 255, NativeWhite},
		{"red", 252, 0, 0, NativeRed},
		{"green", 0, 252, 0, NativeGreen},
		{"blue", 0, 0, 255, NativeBlue},
		{"yellow", 252, 252, 0, NativeYellow},
		{"near red", 255, 0, 0, NativeRed},
		{"orange falls back", 255, 165, 0, NativeYellow},
		{"dark gray", 30, 30, 30, NativeBlack},
	}
	for _, tt := range tests {
		if got := NativeCode(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("%s: NativeCode = 0x%X, want 0x%X", tt.name, got, tt.want)
		}
	}
}

func TestEncodeNative4Bit(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{252, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 0, 255, 255})
	img.SetNRGBA(2, 0, color.NRGBA{0, 0, 0, 255})

	data, err := EncodeNative4Bit(img)
	if err != nil {
		t.Fatalf("EncodeNative4Bit failed: %v", err)
	}
	want := []byte{NativeRed<<4 | NativeBlue, NativeBlack<<4 | NativeWhite}
	if len(data) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, data[i], want[i])
		}
	}

	even, err := EncodeNative4Bit(createSolidImage(20, 20, color.NRGBA{255, 255, 255, 255}))
	if err != nil {
		t.Fatal(err)
	}
	if len(even) != 200 {
		t.Errorf("expected 200 bytes, got %d", len(even))
	}
	for _, b := range even {
		if b != 0x11 {
			t.Fatalf("expected packed white 0x11, got 0x%02X", b)
		}
	}
}

func TestDemoCode(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    byte
	}{
		{"white", 255, 255, 255, DemoWhite},
		{"yellow", 252, 252, 0, DemoYellow},
		{"red", 252, 0, 0, DemoRed},
		{"green", 0, 252, 0, DemoGreen},
		{"blue", 0, 0, 255, DemoBlue},
		{"black", 0, 0, 0, DemoBlack},
		{"band edge white", 250, 250, 250, DemoWhite},
		{"just below band", 249, 249, 249, DemoBlack},
		{"orange", 255, 165, 0, DemoBlack},
		{"magenta", 255, 0, 255, DemoBlack},
	}
	for _, tt := range tests {
		if got := DemoCode(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("%s: DemoCode = 0x%02X, want 0x%02X", tt.name, got, tt.want)
		}
	}
}

func TestEncodeDemoBitmap(t *testing.T) {
	data, err := EncodeDemoBitmap(createSolidImage(8, 4, color.NRGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("EncodeDemoBitmap failed: %v", err)
	}
	if len(data) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(data))
	}
	for _, b := range data {
		if b != DemoBlue {
			t.Fatalf("expected 0x03, got 0x%02X", b)
		}
	}
}

func TestCHeader(t *testing.T) {
	header := CHeader([]byte{0x00, 0xFF, 0xE0, 0x1C}, "TEST_IMAGE", "photo.jpg", 2, 2)
	for _, want := range []string{
		"#ifndef _TEST_IMAGE_H_",
		"const unsigned char TEST_IMAGE[4] PROGMEM",
		"0x00, 0xFF,\n0xE0, 0x1C",
		"photo.jpg",
		"2x2",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header does not contain %q", want)
		}
	}
}

func TestStats(t *testing.T) {
	s := Analyze([]byte{0xFF, 0xFF, 0x00, 0xE0})
	if s.Unique() != 3 {
		t.Errorf("expected 3 unique values, got %d", s.Unique())
	}
	v, c, ok := s.MostCommon()
	if !ok || v != 0xFF || c != 2 {
		t.Errorf("MostCommon = (0x%02X, %d, %v), want (0xFF, 2, true)", v, c, ok)
	}
	if p := s.Percent(0xFF); p != 50 {
		t.Errorf("expected 50%%, got %f", p)
	}
	if p := s.Percent(0x03); p != 0 {
		t.Errorf("expected 0%%, got %f", p)
	}

	if _, _, ok := Analyze(nil).MostCommon(); ok {
		t.Error("expected no most common value for empty data")
	}
}

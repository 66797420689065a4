package encoder

import (
	"fmt"
	"sort"
	"strings"
)

// CHeader renders binary data as a C header with a PROGMEM array, one image
// row per line.
func CHeader(data []byte, variableName, sourceFilename string, width, height int) string {
	guard := fmt.Sprintf("_%s_H_", strings.ToUpper(variableName))

	rowLen := width
	if rowLen <= 0 {
		rowLen = len(data)
	}
	var rows []string
	for start := 0; start < len(data); start += rowLen {
		end := start + rowLen
		if end > len(data) {
			end = len(data)
		}
		vals := make([]string, 0, end-start)
		for _, b := range data[start:end] {
			vals = append(vals, fmt.Sprintf("0x%02X", b))
		}
		rows = append(rows, strings.Join(vals, ", "))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(&sb, "// Generated by photoframe-processor\n")
	fmt.Fprintf(&sb, "// from the image file: %s\n", sourceFilename)
	fmt.Fprintf(&sb, "// Image dimensions: %dx%d pixels\n\n", width, height)
	sb.WriteString("#if defined(ESP8266) || defined(ESP32)\n#include <pgmspace.h>\n#else\n#include <avr/pgmspace.h>\n#endif\n\n")
	fmt.Fprintf(&sb, "const unsigned char %s[%d] PROGMEM = {\n", variableName, len(data))
	sb.WriteString(strings.Join(rows, ",\n"))
	sb.WriteString("\n};\n\n#endif\n")
	return sb.String()
}

// Stats counts how often each byte value occurs in an encoded buffer
type Stats struct {
	Counts map[byte]int
	Total  int
}

// Analyze computes byte usage statistics
func Analyze(data []byte) Stats {
	s := Stats{Counts: make(map[byte]int), Total: len(data)}
	for _, b := range data {
		s.Counts[b]++
	}
	return s
}

// Unique returns the number of distinct byte values
func (s Stats) Unique() int {
	return len(s.Counts)
}

// MostCommon returns the most frequent value; ties go to the lower value.
// ok is false for an empty buffer.
func (s Stats) MostCommon() (value byte, count int, ok bool) {
	keys := make([]int, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	for _, k := range keys {
		if c := s.Counts[byte(k)]; c > count {
			value, count, ok = byte(k), c, true
		}
	}
	return value, count, ok
}

// Percent returns the share of value in the buffer, 0..100
func (s Stats) Percent(value byte) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Counts[value]) / float64(s.Total) * 100
}

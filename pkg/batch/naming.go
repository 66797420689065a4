package batch

import (
	"fmt"
	"hash/fnv"
	"path/filepath"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
)

// Hash returns the content-addressed name of an input: FNV-1a over the
// file stem, as 8 lowercase hex characters. Distinct inputs with the same
// stem map to the same outputs.
func Hash(path string) string {
	h := fnv.New32a()
	h.Write([]byte(utils.Stem(path)))
	return fmt.Sprintf("%08x", h.Sum32())
}

// StandaloneName returns the output file name of a single image
func StandaloneName(path string, f processing.Format) string {
	return Hash(path) + "." + f.Ext()
}

// CombinedName returns the output file name of a pair
func CombinedName(first, second string, f processing.Format) string {
	return fmt.Sprintf("combined_%s_%s.%s", Hash(first), Hash(second), f.Ext())
}

// OutputPath places name in the per-format subdirectory of outDir
func OutputPath(outDir string, f processing.Format, name string) string {
	return filepath.Join(outDir, string(f), name)
}

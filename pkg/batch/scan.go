package batch

import (
	"io/fs"
	"path/filepath"
	"regexp"

	"github.com/sunshineplan/utils/log"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/orientation"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

var (
	standaloneOutput = regexp.MustCompile(`^([0-9a-f]{8})$`)
	combinedOutput   = regexp.MustCompile(`^combined_([0-9a-f]{8})_([0-9a-f]{8})$`)
)

// OutputScan maps the hashes found in an output directory to one existing
// file carrying them
type OutputScan struct {
	Standalone map[string]string
	Combined   map[string]string
}

// ScanOutputs walks outDir once, including the per-format subdirectories,
// and collects the hashes of standalone and combined outputs. A missing
// directory yields an empty scan.
func ScanOutputs(outDir string) OutputScan {
	scan := OutputScan{
		Standalone: make(map[string]string),
		Combined:   make(map[string]string),
	}
	if !utils.DirExists(outDir) {
		return scan
	}

	filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		stem := utils.Stem(d.Name())
		if m := standaloneOutput.FindStringSubmatch(stem); m != nil {
			if _, ok := scan.Standalone[m[1]]; !ok {
				scan.Standalone[m[1]] = path
			}
			return nil
		}
		if m := combinedOutput.FindStringSubmatch(stem); m != nil {
			for _, h := range m[1:] {
				if _, ok := scan.Combined[h]; !ok {
					scan.Combined[h] = path
				}
			}
		}
		return nil
	})
	return scan
}

// FilterExisting drops inputs whose hash already appears in scan. Standalone
// outputs take precedence over combined ones when both exist.
func FilterExisting(paths []string, scan OutputScan) ([]string, []types.SkippedResult) {
	var (
		keep    []string
		skipped []types.SkippedResult
	)
	for _, p := range paths {
		h := Hash(p)
		if existing, ok := scan.Standalone[h]; ok {
			skipped = append(skipped, types.SkippedResult{InputPath: p, Reason: types.SkipStandaloneExists, ExistingPath: existing})
			continue
		}
		if existing, ok := scan.Combined[h]; ok {
			skipped = append(skipped, types.SkippedResult{InputPath: p, Reason: types.SkipCombinedExists, ExistingPath: existing})
			continue
		}
		keep = append(keep, p)
	}
	return keep, skipped
}

// Split classifies inputs with the header-only orientation probe. Inputs
// whose header cannot be read are treated as landscape and fail later in
// their own unit.
func Split(paths []string) (landscape, portrait []string) {
	for _, p := range paths {
		info, err := orientation.Probe(p)
		if err != nil {
			log.Warn("Failed to probe orientation", "path", p, "error", err)
			landscape = append(landscape, p)
			continue
		}
		if info.IsPortrait {
			portrait = append(portrait, p)
		} else {
			landscape = append(landscape, p)
		}
	}
	return
}

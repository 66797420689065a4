package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sunshineplan/utils/log"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
)

// ErrInput is returned for missing or unusable input paths
var ErrInput = errors.New("invalid input")

// DefaultMaxDepth bounds directory recursion during discovery
const DefaultMaxDepth = 32

// Discover collects image files from files and directories. Directories are
// walked recursively up to maxDepth levels below the root (maxDepth <= 0
// means DefaultMaxDepth). Files whose extension is not in exts are ignored;
// an empty exts accepts the default image extensions. The result is sorted
// and free of duplicates.
func Discover(inputs []string, exts []string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	seen := make(map[string]bool)
	var images []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			images = append(images, path)
		}
	}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInput, input, err)
		}

		if !info.IsDir() {
			if !utils.HasExtension(input, exts) {
				log.Warn("Unsupported file extension", "path", input)
				continue
			}
			add(filepath.Clean(input))
			continue
		}

		root := filepath.Clean(input)
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("Failed to read directory entry", "path", path, "error", err)
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if depth(root, path) > maxDepth {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && utils.HasExtension(d.Name(), exts) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInput, input, err)
		}
	}

	sort.Strings(images)
	return images, nil
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

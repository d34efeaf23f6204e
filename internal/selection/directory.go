package selection

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions configures directory scanning behavior.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// Limit caps the number of images returned. 0 = unlimited.
	Limit int
}

// ScanDirectory scans dirPath for supported images. Symlinks to files are
// followed; symlinks to directories are skipped to prevent infinite loops.
// Files that fail validation are logged and skipped. Results are sorted by
// path.
func ScanDirectory(dirPath string, opts ScanOptions) ([]*Image, error) {
	log.Info().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Int("limit", opts.Limit).
		Msg("Scanning directory for images")

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dirPath)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseDepth := strings.Count(absPath, string(os.PathSeparator))

	var images []*Image
	limitReached := false

	err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if opts.MaxDepth > 0 {
			currentDepth := strings.Count(path, string(os.PathSeparator)) - baseDepth
			if d.IsDir() && currentDepth >= opts.MaxDepth {
				return fs.SkipDir
			}
		}
		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			targetInfo, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to stat symlink target, skipping")
				return nil
			}
			if targetInfo.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink to directory")
				return nil
			}
		}

		if !IsSupported(filepath.Ext(d.Name())) {
			return nil
		}

		if opts.Limit > 0 && len(images) >= opts.Limit {
			limitReached = true
			return fs.SkipAll
		}

		img, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("file", d.Name()).Msg("Failed to load image, skipping")
			return nil
		}
		images = append(images, img)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})

	logEvent := log.Info().
		Int("total_images", len(images)).
		Str("directory", dirPath)
	if limitReached {
		logEvent.Bool("limit_reached", true)
	}
	logEvent.Msg("Directory scan complete")

	return images, nil
}

// Collect resolves a mix of file and directory paths into images. Explicit
// files must be valid; directories are scanned with opts. Duplicates are
// dropped and the result is sorted by path.
func Collect(paths []string, opts ScanOptions) ([]*Image, error) {
	seen := make(map[string]bool)
	var images []*Image
	add := func(img *Image) {
		key, err := filepath.Abs(img.Path)
		if err != nil {
			key = img.Path
		}
		if seen[key] {
			return
		}
		seen[key] = true
		images = append(images, img)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			found, err := ScanDirectory(p, opts)
			if err != nil {
				return nil, err
			}
			for _, img := range found {
				add(img)
			}
			continue
		}
		img, err := Load(p)
		if err != nil {
			return nil, err
		}
		add(img)
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})
	return images, nil
}

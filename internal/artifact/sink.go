// Package artifact saves result images returned by the imaging service to a
// local directory, an S3 bucket, or a zstd-compressed zip bundle.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sink stores a named artifact and reports where it went.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (location string, err error)
}

// DirSink writes artifacts into a local directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Artifact written")
	return path, nil
}

// checkName rejects names that would escape the sink's root.
func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid artifact name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("artifact name %q contains a path separator", name)
	}
	return nil
}

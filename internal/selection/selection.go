// Package selection gathers the local images a user wants to upload.
//
// Only the formats the imaging service accepts are selected: PNG, JPEG, GIF
// and WebP. Each file is validated by decoding its image header before it is
// offered for upload, so a truncated or mislabelled file is reported locally
// instead of failing on the server.
package selection

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions maps the accepted file extensions to MIME types.
var SupportedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// IsSupported reports whether ext (with leading dot, any case) is accepted.
func IsSupported(ext string) bool {
	_, ok := SupportedExtensions[strings.ToLower(ext)]
	return ok
}

// Image is a validated local image.
type Image struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
	Format      string
	Width       int
	Height      int
	Meta        *Metadata
}

// Load validates the file at path and returns its description.
func Load(path string) (*Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := SupportedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q: %s", ext, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("not a readable image %s: %w", path, err)
	}

	img := &Image{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Meta:        extractMetadata(path),
	}

	log.Debug().
		Str("path", path).
		Str("format", format).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Str("size", img.HumanSize()).
		Msg("Image loaded")
	return img, nil
}

// Open opens the image for reading.
func (i *Image) Open() (io.ReadCloser, error) {
	return os.Open(i.Path)
}

// HumanSize renders the file size ("12 kB").
func (i *Image) HumanSize() string {
	return humanize.Bytes(uint64(i.Size))
}

func (i *Image) String() string {
	return fmt.Sprintf("%s (%dx%d %s, %s)", i.Name, i.Width, i.Height, i.Format, i.HumanSize())
}

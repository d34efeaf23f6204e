package selection

import (
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Metadata is the EXIF information recorded for an image, when present.
// Scanner exports usually carry none; photographed films often do.
type Metadata struct {
	DateTaken   time.Time
	HasDate     bool
	CameraMake  string
	CameraModel string
}

// extractMetadata reads EXIF from path. Files without EXIF yield nil.
func extractMetadata(path string) *Metadata {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		log.Trace().Err(err).Str("path", path).Msg("No EXIF metadata")
		return nil
	}

	meta := &Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		meta.DateTaken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		meta.DateTaken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		meta.DateTaken = exifData.ModifyDate()
	}
	meta.HasDate = !meta.DateTaken.IsZero()

	if !meta.HasDate && meta.CameraMake == "" && meta.CameraModel == "" {
		return nil
	}

	log.Debug().
		Str("path", path).
		Bool("has_date", meta.HasDate).
		Str("camera", strings.TrimSpace(meta.CameraMake+" "+meta.CameraModel)).
		Msg("Image metadata extracted")
	return meta
}

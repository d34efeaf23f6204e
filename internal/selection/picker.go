package selection

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// Pick opens the native multi-file dialog. Cancelling returns no paths and
// no error; the caller treats that as an empty selection.
func Pick() ([]string, error) {
	patterns := make([]string, 0, len(SupportedExtensions))
	for ext := range SupportedExtensions {
		patterns = append(patterns, "*"+ext)
	}

	selected, err := zenity.SelectFileMultiple(
		zenity.Title("Select MRI images"),
		zenity.FileFilters{
			{Name: "Images", Patterns: patterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			log.Info().Msg("File picker canceled")
			return nil, nil
		}
		return nil, fmt.Errorf("file picker failed: %w", err)
	}

	log.Info().Int("count", len(selected)).Msg("Files picked via native dialog")
	return selected, nil
}

package cli

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/dispatch"
	"github.com/fpang/scanprep/internal/failure"
)

// Exit codes reported by scanprep commands.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitNoImages    = 3
	ExitRemote      = 4
	ExitDownload    = 5
	ExitInterrupted = 130
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, dispatch.ErrBusy) {
		return ExitFailure
	}
	fe, ok := failure.As(err)
	if !ok {
		return ExitFailure
	}
	switch fe.Type {
	case failure.TypeEmptySelection, failure.TypeNoImagesUploaded:
		return ExitNoImages
	case failure.TypeTransport, failure.TypeApplication:
		return ExitRemote
	case failure.TypeDownload:
		return ExitDownload
	default:
		return ExitFailure
	}
}

// LogFailure writes a one-line diagnosis of err for the terminal log.
func LogFailure(err error) {
	fe, ok := failure.As(err)
	if !ok {
		log.Error().Err(err).Msg("Command failed")
		return
	}
	switch fe.Type {
	case failure.TypeEmptySelection:
		log.Error().Msg("No images selected. Pass image files or directories, or use --pick")
	case failure.TypeNoImagesUploaded:
		log.Error().Str("operation", fe.Op).Msg("No images uploaded yet. Upload images before running operations")
	case failure.TypeTransport:
		log.Error().Err(err).Int("statusCode", fe.StatusCode).Str("operation", fe.Op).Msg("Imaging service unreachable or returned an error status")
	case failure.TypeApplication:
		log.Error().Err(err).Str("operation", fe.Op).Msg("Imaging service rejected the request")
	case failure.TypeDownload:
		log.Error().Err(err).Msg("Could not save result")
	default:
		log.Error().Err(err).Msg("Command failed")
	}
}

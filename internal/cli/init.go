package cli

import (
	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/session"
)

// InitSession resumes the session saved in stateFile, or starts a new one
// when stateFile is empty or does not exist yet. Exits fatally on a corrupt
// state file.
func InitSession(stateFile string) *session.Session {
	if stateFile == "" {
		s := session.New()
		log.Debug().Str("sessionId", s.ID).Msg("Started new session")
		return s
	}

	s, err := session.Load(stateFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", stateFile).Msg("Failed to load session state")
	}
	return s
}

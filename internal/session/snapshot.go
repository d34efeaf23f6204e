package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/operation"
)

// snapshot is the on-disk form of a Session.
type snapshot struct {
	ID            string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	Originals     []string  `json:"original_filenames"`
	Current       []string  `json:"current_filenames"`
	LastOperation string    `json:"last_operation,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

// Save writes s to path, holding an exclusive lock on path+".lock" so two
// scanprep processes never interleave writes to the same state file.
func Save(path string, s *Session) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer lock.Unlock()

	st := s.State()
	data, err := json.MarshalIndent(snapshot{
		ID:            s.ID,
		StartedAt:     s.StartedAt,
		Originals:     st.Originals,
		Current:       st.Current,
		LastOperation: string(st.LastOperation),
		SavedAt:       time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scanprep-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}

	log.Debug().
		Str("path", path).
		Str("sessionId", s.ID).
		Int("originals", len(st.Originals)).
		Int("current", len(st.Current)).
		Msg("Session state saved")
	return nil
}

// Load restores a Session from path. A missing file yields a new session.
func Load(path string) (*Session, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("No saved session, starting a new one")
			return New(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("state file %s has no session id", path)
	}

	s := &Session{
		ID:            snap.ID,
		StartedAt:     snap.StartedAt,
		originals:     clone(snap.Originals),
		current:       clone(snap.Current),
		lastOperation: operation.Kind(snap.LastOperation),
	}
	log.Info().
		Str("sessionId", s.ID).
		Int("originals", len(s.originals)).
		Int("current", len(s.current)).
		Msg("Resumed saved session")
	return s, nil
}

// Package session owns the client-side view of which images the remote
// service holds for this session.
//
// A Session tracks two filename sequences: the originals returned by the most
// recent successful upload, and the current set produced by the most recent
// successful chaining operation. Both are only ever replaced wholesale.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/scanprep/internal/operation"
)

// State is a point-in-time copy of a Session's filename tracking.
type State struct {
	Originals     []string
	Current       []string
	LastOperation operation.Kind
}

// Session holds the filename state for one client session. It is safe for
// concurrent use; every accessor returns copies.
type Session struct {
	ID        string
	StartedAt time.Time

	mu            sync.Mutex
	originals     []string
	current       []string
	lastOperation operation.Kind
}

// New starts an empty session with a fresh ID.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// State returns a copy of the current filename state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Originals:     clone(s.originals),
		Current:       clone(s.current),
		LastOperation: s.lastOperation,
	}
}

// HasOriginals reports whether an upload has succeeded in this session.
func (s *Session) HasOriginals() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.originals) > 0
}

// ReplaceOriginals records the filenames of a successful upload. Any derived
// images and the last requested operation are forgotten.
func (s *Session) ReplaceOriginals(filenames []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originals = clone(filenames)
	s.current = nil
	s.lastOperation = ""
}

// Resolve returns the filenames an operation of the given kind submits:
// detection prefers the current derived set and falls back to the originals;
// every other kind always works from the originals.
func (s *Session) Resolve(kind operation.Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == operation.Detect && len(s.current) > 0 {
		return clone(s.current)
	}
	return clone(s.originals)
}

// BeginChaining marks a chaining operation as requested. The current set is
// cleared immediately so a detection pass issued after a failed chaining
// operation falls back to the originals.
func (s *Session) BeginChaining(kind operation.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.lastOperation = kind
}

// CommitDerived replaces the current set with the output of a successful
// chaining operation.
func (s *Session) CommitDerived(filenames []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = clone(filenames)
}

// FilenameFromURL returns the final path segment of a service URL.
func FilenameFromURL(u string) string {
	return u[strings.LastIndex(u, "/")+1:]
}

// FilenamesFromURLs maps FilenameFromURL over urls, preserving order.
func FilenamesFromURLs(urls []string) []string {
	names := make([]string, len(urls))
	for i, u := range urls {
		names[i] = FilenameFromURL(u)
	}
	return names
}

func clone(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

package feedback

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/reconcile"
)

// Renderer draws feedback changes. Terminal is the production renderer.
type Renderer interface {
	Icon(Icon)
	Notification(message string)
	Controls(enabled bool)
	Outcome(*reconcile.Outcome)
	Saved(location string, size int64)
}

// Surface owns the status icon, notifier and controls.
type Surface struct {
	notifier *Notifier
	controls *Controls
	renderer Renderer

	mu   sync.Mutex
	icon Icon
}

// NewSurface starts idle with controls disabled. A nil renderer discards
// output.
func NewSurface(clock Clock, renderer Renderer) *Surface {
	if renderer == nil {
		renderer = discard{}
	}
	idle, _ := Lookup(Idle)
	return &Surface{
		notifier: NewNotifier(clock),
		controls: NewControls(clock),
		renderer: renderer,
		icon:     idle,
	}
}

// Signal switches the status icon. Unknown tags are ignored.
func (s *Surface) Signal(tag Tag) {
	icon, ok := Lookup(tag)
	if !ok {
		log.Debug().Str("tag", string(tag)).Msg("Ignoring unknown icon tag")
		return
	}
	s.mu.Lock()
	s.icon = icon
	s.mu.Unlock()
	s.renderer.Icon(icon)
}

// Icon returns the current status icon.
func (s *Surface) Icon() Icon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.icon
}

// Notify shows message, replacing any visible notification.
func (s *Surface) Notify(message string) {
	s.notifier.Show(message)
	s.renderer.Notification(message)
}

// Dismiss closes the visible notification.
func (s *Surface) Dismiss() {
	s.notifier.Dismiss()
}

func (s *Surface) Notification() Notification {
	return s.notifier.Current()
}

func (s *Surface) Controls() *Controls {
	return s.controls
}

// SetControls enables or disables every operation control and returns the
// previous value.
func (s *Surface) SetControls(enabled bool) bool {
	prev := s.controls.SetEnabled(enabled)
	if prev != enabled {
		s.renderer.Controls(enabled)
	}
	return prev
}

// Saved reports a stored artifact.
func (s *Surface) Saved(location string, size int64) {
	s.renderer.Saved(location, size)
}

// Show renders a reconciled outcome.
func (s *Surface) Show(out *reconcile.Outcome) {
	if out == nil {
		return
	}
	s.renderer.Outcome(out)
}

type discard struct{}

func (discard) Icon(Icon)                  {}
func (discard) Notification(string)        {}
func (discard) Controls(bool)              {}
func (discard) Outcome(*reconcile.Outcome) {}
func (discard) Saved(string, int64)        {}

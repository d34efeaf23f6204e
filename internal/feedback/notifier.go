package feedback

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// AutoDismiss is how long a notification stays visible.
	AutoDismiss = 10 * time.Second
	// ExitTransition is how long a dismissed notification takes to disappear.
	ExitTransition = 300 * time.Millisecond
)

// Phase is the visibility state of the notification.
type Phase int

const (
	Hidden Phase = iota
	Visible
	Leaving
)

func (p Phase) String() string {
	switch p {
	case Visible:
		return "visible"
	case Leaving:
		return "leaving"
	default:
		return "hidden"
	}
}

// Notification is a snapshot of the notifier.
type Notification struct {
	Message string
	Phase   Phase
}

// Notifier shows at most one notification at a time. Showing a new message
// replaces the current one and restarts its timers.
type Notifier struct {
	clock Clock

	mu    sync.Mutex
	cur   Notification
	gen   uint64
	timer Timer
}

// NewNotifier creates a hidden notifier driven by clock.
func NewNotifier(clock Clock) *Notifier {
	if clock == nil {
		clock = RealClock()
	}
	return &Notifier{clock: clock}
}

// Show displays message and schedules its auto-dismissal.
func (n *Notifier) Show(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopTimer()
	n.gen++
	n.cur = Notification{Message: message, Phase: Visible}
	gen := n.gen
	n.timer = n.clock.AfterFunc(AutoDismiss, func() { n.leave(gen) })
}

// Dismiss starts the exit transition of the visible notification.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cur.Phase != Visible {
		return
	}
	n.stopTimer()
	n.beginLeave()
}

// Current returns the notifier state.
func (n *Notifier) Current() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cur
}

func (n *Notifier) leave(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen || n.cur.Phase != Visible {
		return
	}
	n.beginLeave()
}

func (n *Notifier) beginLeave() {
	n.cur.Phase = Leaving
	gen := n.gen
	n.timer = n.clock.AfterFunc(ExitTransition, func() { n.hide(gen) })
}

func (n *Notifier) hide(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen || n.cur.Phase != Leaving {
		return
	}
	log.Trace().Str("message", n.cur.Message).Msg("Notification hidden")
	n.cur = Notification{}
	n.timer = nil
}

func (n *Notifier) stopTimer() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

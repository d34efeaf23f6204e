package feedback

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/reconcile"
	"github.com/fpang/scanprep/internal/remote"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward by d, firing due timers in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
		var next *manualTimer
		for i, t := range c.timers {
			if t.stopped {
				continue
			}
			if t.at <= target {
				next = t
				c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
			}
			break
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.stopped = true
		c.mu.Unlock()
		next.f()
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		tag  Tag
		path string
	}{
		{Idle, "/static/favicon/idle.svg"},
		{Processing, "/static/favicon/processing.svg"},
		{Success, "/static/favicon/success.svg"},
		{Error, "/static/favicon/error.svg"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			icon, ok := Lookup(tt.tag)
			if !ok || icon.Path != tt.path {
				t.Errorf("Lookup(%q) = %+v, %v; want path %q", tt.tag, icon, ok, tt.path)
			}
		})
	}
	if _, ok := Lookup("warning"); ok {
		t.Error("Lookup(warning) ok = true, want false")
	}
}

func TestSignalIgnoresUnknownTag(t *testing.T) {
	s := NewSurface(&manualClock{}, nil)
	s.Signal(Error)
	s.Signal("sparkles")
	if got := s.Icon().Tag; got != Error {
		t.Errorf("Icon().Tag = %q, want %q", got, Error)
	}
}

func TestSurfaceStartsIdleWithControlsDisabled(t *testing.T) {
	s := NewSurface(&manualClock{}, nil)
	if got := s.Icon().Tag; got != Idle {
		t.Errorf("Icon().Tag = %q, want idle", got)
	}
	if s.Controls().Enabled() {
		t.Error("Controls().Enabled() = true, want false")
	}
	if prev := s.SetControls(true); prev {
		t.Error("SetControls() previous = true, want false")
	}
	if !s.Controls().Enabled() {
		t.Error("Controls().Enabled() = false after SetControls(true)")
	}
}

func TestNotifierAutoDismiss(t *testing.T) {
	clock := &manualClock{}
	n := NewNotifier(clock)
	n.Show("hello")

	clock.Advance(AutoDismiss - time.Millisecond)
	if got := n.Current(); got.Phase != Visible || got.Message != "hello" {
		t.Fatalf("Current() = %+v, want visible hello", got)
	}

	clock.Advance(time.Millisecond)
	if got := n.Current().Phase; got != Leaving {
		t.Fatalf("Phase = %v, want leaving", got)
	}

	clock.Advance(ExitTransition)
	if got := n.Current(); got.Phase != Hidden || got.Message != "" {
		t.Errorf("Current() = %+v, want hidden", got)
	}
}

func TestNotifierReplacementRestartsTimers(t *testing.T) {
	clock := &manualClock{}
	n := NewNotifier(clock)
	n.Show("first")
	clock.Advance(8 * time.Second)

	n.Show("second")
	clock.Advance(8 * time.Second)
	if got := n.Current(); got.Phase != Visible || got.Message != "second" {
		t.Fatalf("Current() = %+v, want visible second", got)
	}

	clock.Advance(2*time.Second + ExitTransition)
	if got := n.Current().Phase; got != Hidden {
		t.Errorf("Phase = %v, want hidden", got)
	}
}

func TestNotifierReplaceDuringExit(t *testing.T) {
	clock := &manualClock{}
	n := NewNotifier(clock)
	n.Show("first")
	clock.Advance(AutoDismiss + 100*time.Millisecond)

	n.Show("second")
	clock.Advance(ExitTransition)
	if got := n.Current(); got.Phase != Visible || got.Message != "second" {
		t.Errorf("Current() = %+v, want visible second", got)
	}
}

func TestNotifierDismiss(t *testing.T) {
	clock := &manualClock{}
	n := NewNotifier(clock)
	n.Show("bye")
	n.Dismiss()
	if got := n.Current().Phase; got != Leaving {
		t.Fatalf("Phase = %v, want leaving", got)
	}
	clock.Advance(ExitTransition)
	if got := n.Current().Phase; got != Hidden {
		t.Errorf("Phase = %v, want hidden", got)
	}

	n.Dismiss()
	if got := n.Current().Phase; got != Hidden {
		t.Errorf("Dismiss() on hidden changed phase to %v", got)
	}
}

func TestDetectSuccessFlash(t *testing.T) {
	clock := &manualClock{}
	c := NewControls(clock)

	c.BeginDetect()
	if got := c.Detect(); got != DetectLoading {
		t.Fatalf("Detect() = %v, want loading", got)
	}
	c.EndDetect(true)
	if got := c.Detect(); got != DetectSucceeded {
		t.Fatalf("Detect() = %v, want succeeded", got)
	}
	clock.Advance(SuccessFlash)
	if got := c.Detect(); got != DetectReady {
		t.Errorf("Detect() = %v, want ready", got)
	}

	c.BeginDetect()
	c.EndDetect(false)
	if got := c.Detect(); got != DetectReady {
		t.Errorf("Detect() after failure = %v, want ready", got)
	}
}

func TestDetectFlashCancelledByNewPass(t *testing.T) {
	clock := &manualClock{}
	c := NewControls(clock)
	c.BeginDetect()
	c.EndDetect(true)
	clock.Advance(SuccessFlash / 2)

	c.BeginDetect()
	clock.Advance(SuccessFlash)
	if got := c.Detect(); got != DetectLoading {
		t.Errorf("Detect() = %v, want loading", got)
	}
}

func TestTerminalOutcome(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Outcome(&reconcile.Outcome{
		Kind:       operation.Detect,
		ResultURLs: []string{"/img/a.png", "/img/b.png"},
		Summary:    &reconcile.Summary{Total: 2, Positive: 1, Negative: 1},
		Findings: []reconcile.Finding{
			{ImageURL: "/img/a.png", TumorDetected: true, Details: []remote.DetectionDetail{{Type: "glioma", Location: "left", Confidence: "0.9"}}},
			{ImageURL: "/img/b.png"},
		},
	})

	out := buf.String()
	for _, want := range []string{"Detect", "/img/a.png", "Tumor detected.", "No tumor detected.", "Type: glioma, Location: left, Confidence: 0.9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("output contains ANSI escapes for a non-terminal writer")
	}
}

func TestTerminalSaved(t *testing.T) {
	var buf bytes.Buffer
	NewTerminal(&buf).Saved("out/a.png", 2048)
	if got := buf.String(); got != "saved out/a.png (2.0 kB)\n" {
		t.Errorf("Saved() wrote %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := RenderTable([]string{"A", "B"}, [][]string{{"only"}}, []Alignment{AlignLeft, AlignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Errorf("RenderTable() = %q", out)
	}
	if RenderTable(nil, nil, nil) != "" {
		t.Error("RenderTable(no headers) != empty")
	}
}

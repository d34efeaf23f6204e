package feedback

import (
	"sync"
	"time"
)

// SuccessFlash is how long the detect control shows its success state.
const SuccessFlash = time.Second

// DetectState is the visual state of the detect control.
type DetectState int

const (
	DetectReady DetectState = iota
	DetectLoading
	DetectSucceeded
)

func (s DetectState) String() string {
	switch s {
	case DetectLoading:
		return "loading"
	case DetectSucceeded:
		return "succeeded"
	default:
		return "ready"
	}
}

// Controls gates every operation control with one flag.
type Controls struct {
	clock Clock

	mu      sync.Mutex
	enabled bool
	detect  DetectState
	gen     uint64
	flash   Timer
}

// NewControls returns disabled controls.
func NewControls(clock Clock) *Controls {
	if clock == nil {
		clock = RealClock()
	}
	return &Controls{clock: clock}
}

func (c *Controls) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled sets the flag and returns its previous value.
func (c *Controls) SetEnabled(enabled bool) (previous bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, c.enabled = c.enabled, enabled
	return previous
}

func (c *Controls) Detect() DetectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detect
}

// BeginDetect puts the detect control into its loading state.
func (c *Controls) BeginDetect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFlash()
	c.detect = DetectLoading
}

// EndDetect leaves the loading state. A successful pass flashes the success
// state for SuccessFlash before returning to ready.
func (c *Controls) EndDetect(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFlash()
	if !ok {
		c.detect = DetectReady
		return
	}
	c.detect = DetectSucceeded
	gen := c.gen
	c.flash = c.clock.AfterFunc(SuccessFlash, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen == c.gen {
			c.detect = DetectReady
			c.flash = nil
		}
	})
}

func (c *Controls) cancelFlash() {
	c.gen++
	if c.flash != nil {
		c.flash.Stop()
		c.flash = nil
	}
}

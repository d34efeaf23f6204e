package logging

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects the resolved configuration, storage targets and
// feature flags, then emits a single structured zerolog event summarising how
// this invocation was configured.
type StartupLogger struct {
	name         string
	version      string
	sessionID    string
	initDuration time.Duration

	storage  map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the named command
// (e.g. "run", "shell").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		storage:  make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Session sets the client session id.
func (s *StartupLogger) Session(id string) *StartupLogger {
	s.sessionID = id
	return s
}

// Storage registers a place results or state are written to.
func (s *StartupLogger) Storage(label, location string) *StartupLogger {
	s.storage[label] = location
	return s
}

// Feature registers a boolean feature flag (e.g. "metrics", "picker").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured DEBUG event with everything collected.
func (s *StartupLogger) Log() {
	evt := log.Debug()

	app := zerolog.Dict().
		Str("command", s.name).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		app = app.Str("version", s.version)
	}
	if s.sessionID != "" {
		app = app.Str("sessionId", s.sessionID)
	}
	evt = evt.Dict("app", app)

	if len(s.storage) > 0 {
		evt = evt.Dict("storage", dictFromMap(s.storage))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("scanprep started")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}

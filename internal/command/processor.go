package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/artifact"
	"github.com/fpang/scanprep/internal/cli"
	"github.com/fpang/scanprep/internal/dispatch"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/reconcile"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/selection"
	"github.com/fpang/scanprep/internal/session"
	"github.com/fpang/scanprep/internal/upload"
)

// Service is the imaging API the processor drives. *remote.Client implements it.
type Service interface {
	Upload(ctx context.Context, parts []remote.Part) ([]string, error)
	Process(ctx context.Context, processType string, filenames []string) ([]string, error)
	Augment(ctx context.Context, augmentType string, filenames []string) ([]string, error)
	Detect(ctx context.Context, filenames []string) ([]remote.DetectionResult, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Result is what a handled command produced.
type Result struct {
	// ImageURLs are the images the command rendered (uploads and chaining
	// operations) or analyzed (detection).
	ImageURLs []string
	Outcome   *reconcile.Outcome
	Location  string
	State     *session.State
}

// Reply pairs a Result with the command's error.
type Reply struct {
	Command Command
	Result  Result
	Err     error
}

// Processor executes commands for one session.
type Processor struct {
	session    *session.Session
	surface    *feedback.Surface
	tracker    *upload.Tracker
	dispatcher *dispatch.Dispatcher
	downloader *artifact.Downloader

	stateFile string
	out       io.Writer

	lastResults []string
}

// Option customizes a Processor.
type Option func(*processorConfig)

type processorConfig struct {
	stateFile    string
	out          io.Writer
	dispatchOpts []dispatch.Option
}

// WithStateFile saves the session to path after every state change.
func WithStateFile(path string) Option {
	return func(c *processorConfig) { c.stateFile = path }
}

// WithOutput sets where status tables are written.
func WithOutput(w io.Writer) Option {
	return func(c *processorConfig) { c.out = w }
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(c *processorConfig) { c.dispatchOpts = append(c.dispatchOpts, opts...) }
}

// NewProcessor wires the upload tracker, dispatcher and downloader around s.
// Controls start enabled only if s already holds uploaded images.
func NewProcessor(s *session.Session, svc Service, surface *feedback.Surface, sink artifact.Sink, opts ...Option) *Processor {
	cfg := processorConfig{out: io.Discard}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := dispatch.New(s, svc, surface, cfg.dispatchOpts...)
	p := &Processor{
		session:    s,
		surface:    surface,
		tracker:    upload.New(s, svc, surface, d.Guard()),
		dispatcher: d,
		downloader: artifact.NewDownloader(svc, sink, surface),
		stateFile:  cfg.stateFile,
		out:        cfg.out,
	}
	if s.HasOriginals() {
		surface.SetControls(true)
	}
	return p
}

// Handle runs cmd to completion.
func (p *Processor) Handle(ctx context.Context, cmd Command) (Result, error) {
	log.Debug().Str("command", cmd.Name()).Msg("Handling command")

	switch c := cmd.(type) {
	case Upload:
		return p.upload(ctx, c)
	case Dispatch:
		return p.dispatch(ctx, c.Request)
	case Download:
		location, err := p.downloader.Download(ctx, c.URL)
		return Result{Location: location}, err
	case DownloadAll:
		file := c.File
		if file == "" {
			file = DefaultBundleName
		}
		location, err := p.downloader.Bundle(ctx, p.lastResults, file)
		return Result{Location: location}, err
	case Status:
		st := p.session.State()
		p.renderStatus(st)
		return Result{State: &st, ImageURLs: p.LastResults()}, nil
	case Dismiss:
		p.surface.Dismiss()
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("unsupported command %T", cmd)
	}
}

// Run handles commands from cmds in order until cmds is closed or ctx is
// done. Each outcome is sent to replies when replies is non-nil.
func (p *Processor) Run(ctx context.Context, cmds <-chan Command, replies chan<- Reply) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			res, err := p.Handle(ctx, cmd)
			if err != nil {
				log.Debug().Err(err).Str("command", cmd.Name()).Msg("Command failed")
			}
			if replies != nil {
				select {
				case replies <- Reply{Command: cmd, Result: res, Err: err}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// LastResults returns the image URLs rendered by the latest successful
// upload or operation.
func (p *Processor) LastResults() []string {
	return append([]string(nil), p.lastResults...)
}

func (p *Processor) upload(ctx context.Context, c Upload) (Result, error) {
	prev := p.surface.SetControls(false)

	images, err := selection.Collect(c.Paths, c.Scan)
	if err != nil {
		p.surface.SetControls(prev)
		p.surface.Notify(err.Error())
		p.surface.Signal(feedback.Error)
		return Result{}, err
	}

	urls, err := p.tracker.Upload(ctx, images)
	if err != nil {
		p.surface.SetControls(prev)
		return Result{}, err
	}

	p.lastResults = urls
	p.save()
	return Result{ImageURLs: urls}, nil
}

func (p *Processor) dispatch(ctx context.Context, req operation.Request) (Result, error) {
	prev := p.surface.SetControls(false)
	defer p.surface.SetControls(prev)

	detect := req.Kind == operation.Detect
	if detect {
		p.surface.Controls().BeginDetect()
	}

	out, err := p.dispatcher.Dispatch(ctx, req)

	if detect {
		p.surface.Controls().EndDetect(err == nil)
	}
	if errors.Is(err, dispatch.ErrBusy) {
		return Result{}, err
	}
	// Chaining kinds reset the derived set even when they fail.
	if req.Kind.Chaining() {
		p.save()
	}
	if err != nil {
		return Result{}, err
	}

	p.surface.Show(out)
	p.lastResults = out.ResultURLs
	return Result{ImageURLs: out.ResultURLs, Outcome: out}, nil
}

func (p *Processor) save() {
	if p.stateFile == "" {
		return
	}
	if err := session.Save(p.stateFile, p.session); err != nil {
		log.Warn().Err(err).Str("path", p.stateFile).Msg("Failed to save session state")
	}
}

func (p *Processor) renderStatus(st session.State) {
	last := string(st.LastOperation)
	if last == "" {
		last = "-"
	}
	rows := [][]string{
		{"Session", p.session.ID},
		{"Started", p.session.StartedAt.Local().Format(time.DateTime)},
		{"Age", cli.FormatDurationShort(time.Since(p.session.StartedAt))},
		{"Originals", joinOrDash(st.Originals)},
		{"Current", joinOrDash(st.Current)},
		{"Last operation", last},
		{"Controls", enabledLabel(p.surface.Controls().Enabled())},
		{"Detect", p.surface.Controls().Detect().String()},
		{"Icon", p.surface.Icon().Path},
	}
	fmt.Fprintln(p.out, feedback.RenderTable([]string{"Field", "Value"}, rows, nil))
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	s := names[0]
	for _, n := range names[1:] {
		s += "\n" + n
	}
	return s
}

func enabledLabel(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

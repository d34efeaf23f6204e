// Package reconcile turns successful service responses into session updates
// and user-facing results.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/session"
)

const (
	captionPositive = "Tumor detected."
	captionNegative = "No tumor detected."
)

// Summary counts the verdicts of one detection pass.
type Summary struct {
	Total    int
	Positive int
	Negative int
}

// Text renders the completion message shown after detection.
func (s Summary) Text() string {
	if s.Total == 1 {
		if s.Positive == 1 {
			return "Analysis Complete: Tumor detected in the image."
		}
		return "Analysis Complete: No tumor detected in the image."
	}

	positive := "images have"
	if s.Positive == 1 {
		positive = "image has"
	}
	negative := "images appear"
	if s.Negative == 1 {
		negative = "image appears"
	}
	return fmt.Sprintf("Analysis Complete: Out of %d images analyzed, %d %s tumors detected and %d %s healthy.",
		s.Total, s.Positive, positive, s.Negative, negative)
}

// Finding is the rendered verdict for one image.
type Finding struct {
	ImageURL      string
	TumorDetected bool
	Details       []remote.DetectionDetail
}

// Caption is the one-line verdict shown under the image.
func (f Finding) Caption() string {
	if f.TumorDetected {
		return captionPositive
	}
	return captionNegative
}

// DetailLines renders each detail; empty unless a tumor was detected.
func (f Finding) DetailLines() []string {
	if !f.TumorDetected {
		return nil
	}
	lines := make([]string, 0, len(f.Details))
	for _, d := range f.Details {
		lines = append(lines, fmt.Sprintf("Type: %s, Location: %s, Confidence: %s", d.Type, d.Location, d.Confidence))
	}
	return lines
}

// Outcome is the reconciled result of one successful dispatch.
type Outcome struct {
	Kind operation.Kind

	// ResultURLs are the images to render, in server order. For chaining
	// operations these are the derived images; for detection, the analyzed ones.
	ResultURLs []string

	// Set for detection only.
	Summary  *Summary
	Findings []Finding
}

// Message is the notification for a successful outcome; empty for chaining
// operations, which only refresh the image list.
func (o *Outcome) Message() string {
	if o.Summary == nil {
		return ""
	}
	return o.Summary.Text()
}

func (o *Outcome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d image(s)", o.Kind, len(o.ResultURLs))
	if o.Summary != nil {
		fmt.Fprintf(&b, ", %d positive", o.Summary.Positive)
	}
	return b.String()
}

// Reconciler applies successful responses to a session.
type Reconciler struct {
	session *session.Session
}

// New creates a Reconciler that commits into s.
func New(s *session.Session) *Reconciler {
	return &Reconciler{session: s}
}

// Images commits the output of a chaining operation: the current filename set
// is replaced by the final path segments of urls.
func (r *Reconciler) Images(kind operation.Kind, urls []string) *Outcome {
	names := session.FilenamesFromURLs(urls)
	r.session.CommitDerived(names)

	log.Info().
		Str("kind", string(kind)).
		Strs("filenames", names).
		Msg("Derived images committed")

	return &Outcome{Kind: kind, ResultURLs: append([]string(nil), urls...)}
}

// Detection summarizes a detection pass. Session filename state is untouched.
func (r *Reconciler) Detection(results []remote.DetectionResult) *Outcome {
	out := &Outcome{
		Kind:       operation.Detect,
		ResultURLs: make([]string, 0, len(results)),
		Summary:    &Summary{Total: len(results)},
		Findings:   make([]Finding, 0, len(results)),
	}
	for _, res := range results {
		if res.TumorDetected {
			out.Summary.Positive++
		} else {
			out.Summary.Negative++
		}
		out.ResultURLs = append(out.ResultURLs, res.ImageURL)
		out.Findings = append(out.Findings, Finding{
			ImageURL:      res.ImageURL,
			TumorDetected: res.TumorDetected,
			Details:       res.Details,
		})
	}

	log.Info().
		Int("total", out.Summary.Total).
		Int("positive", out.Summary.Positive).
		Int("negative", out.Summary.Negative).
		Msg("Detection reconciled")
	return out
}

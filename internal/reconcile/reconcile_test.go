package reconcile

import (
	"reflect"
	"testing"

	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/session"
)

func TestSummaryText(t *testing.T) {
	tests := []struct {
		name string
		s    Summary
		want string
	}{
		{"single positive", Summary{1, 1, 0}, "Analysis Complete: Tumor detected in the image."},
		{"single negative", Summary{1, 0, 1}, "Analysis Complete: No tumor detected in the image."},
		{"one and one", Summary{2, 1, 1},
			"Analysis Complete: Out of 2 images analyzed, 1 image has tumors detected and 1 image appears healthy."},
		{"plural both", Summary{5, 2, 3},
			"Analysis Complete: Out of 5 images analyzed, 2 images have tumors detected and 3 images appear healthy."},
		{"zero positive", Summary{3, 0, 3},
			"Analysis Complete: Out of 3 images analyzed, 0 images have tumors detected and 3 images appear healthy."},
		{"empty", Summary{0, 0, 0},
			"Analysis Complete: Out of 0 images analyzed, 0 images have tumors detected and 0 images appear healthy."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImagesCommitsDerivedFilenames(t *testing.T) {
	s := session.New()
	s.ReplaceOriginals([]string{"a.png", "b.png"})
	s.BeginChaining(operation.Normalization)

	out := New(s).Images(operation.Normalization, []string{"/img/n_a.png", "/img/n_b.png"})

	if want := []string{"n_a.png", "n_b.png"}; !reflect.DeepEqual(s.State().Current, want) {
		t.Errorf("Current = %v, want %v", s.State().Current, want)
	}
	if want := []string{"/img/n_a.png", "/img/n_b.png"}; !reflect.DeepEqual(out.ResultURLs, want) {
		t.Errorf("ResultURLs = %v, want %v", out.ResultURLs, want)
	}
	if out.Summary != nil || out.Message() != "" {
		t.Errorf("chaining outcome has detection summary: %+v", out.Summary)
	}
}

func TestDetectionLeavesStateUntouched(t *testing.T) {
	s := session.New()
	s.ReplaceOriginals([]string{"a.png", "b.png", "c.png"})
	s.CommitDerived([]string{"n_a.png", "n_b.png", "n_c.png"})
	before := s.State()

	out := New(s).Detection([]remote.DetectionResult{
		{ImageURL: "/img/n_a.png", TumorDetected: true, Details: []remote.DetectionDetail{
			{Type: "glioma", Location: "frontal lobe", Confidence: "0.93"},
		}},
		{ImageURL: "/img/n_b.png", TumorDetected: false},
		{ImageURL: "/img/n_c.png", TumorDetected: false},
	})

	if !reflect.DeepEqual(s.State(), before) {
		t.Errorf("State() = %+v, want unchanged %+v", s.State(), before)
	}
	if *out.Summary != (Summary{Total: 3, Positive: 1, Negative: 2}) {
		t.Errorf("Summary = %+v", *out.Summary)
	}
	want := "Analysis Complete: Out of 3 images analyzed, 1 image has tumors detected and 2 images appear healthy."
	if got := out.Message(); got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	if got := out.Findings[0].Caption(); got != "Tumor detected." {
		t.Errorf("Caption() = %q", got)
	}
	if got := out.Findings[1].Caption(); got != "No tumor detected." {
		t.Errorf("Caption() = %q", got)
	}
	if got := out.Findings[0].DetailLines(); !reflect.DeepEqual(got, []string{"Type: glioma, Location: frontal lobe, Confidence: 0.93"}) {
		t.Errorf("DetailLines() = %v", got)
	}
}

func TestDetailLinesHiddenWhenNegative(t *testing.T) {
	f := Finding{TumorDetected: false, Details: []remote.DetectionDetail{{Type: "x", Location: "y", Confidence: "1"}}}
	if got := f.DetailLines(); got != nil {
		t.Errorf("DetailLines() = %v, want nil", got)
	}
}

package command

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fpang/scanprep/internal/artifact"
	"github.com/fpang/scanprep/internal/dispatch"
	"github.com/fpang/scanprep/internal/failure"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/session"
)

// fakeImagingServer mimics the imaging API: uploads store files, process and
// augment derive one file per input, detect flags every other image.
type fakeImagingServer struct {
	mu       sync.Mutex
	requests []string
}

func newFakeImagingServer(t *testing.T) *httptest.Server {
	t.Helper()
	f := &fakeImagingServer{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeImagingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/static/"):
		w.Write([]byte("png:" + filepath.Base(r.URL.Path)))
	case r.URL.Path == "/upload":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var urls []string
		for _, fh := range r.MultipartForm.File["images"] {
			urls = append(urls, "/static/uploads/"+fh.Filename)
		}
		writeJSON(w, map[string]any{"image_urls": urls})
	case r.URL.Path == "/process" || r.URL.Path == "/augment":
		var req struct {
			Type      string   `json:"type"`
			Filenames []string `json:"filenames"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Type == "skull_stripping" {
			writeJSON(w, map[string]any{"error": "model unavailable"})
			return
		}
		var urls []string
		for _, name := range req.Filenames {
			urls = append(urls, fmt.Sprintf("/static/processed/%s_%s", req.Type, name))
		}
		writeJSON(w, map[string]any{"image_urls": urls})
	case r.URL.Path == "/detect":
		var req struct {
			Filenames []string `json:"filenames"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		var results []map[string]any
		for i, name := range req.Filenames {
			res := map[string]any{"image_url": "/static/detect/" + name, "tumor_detected": i%2 == 0}
			if i%2 == 0 {
				res["details"] = []map[string]any{{"type": "glioma", "location": "frontal", "confidence": 0.91}}
			}
			results = append(results, res)
		}
		writeJSON(w, map[string]any{"detection_results": results})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return path
}

type noClock struct{}

func (noClock) AfterFunc(time.Duration, func()) feedback.Timer { return stopped{} }

type stopped struct{}

func (stopped) Stop() bool { return false }

type fixture struct {
	proc    *Processor
	session *session.Session
	surface *feedback.Surface
	out     *bytes.Buffer
	saveDir string
	state   string
	imgDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := newFakeImagingServer(t)
	s := session.New()
	client := remote.NewClient(srv.URL, 5*time.Second)
	client.SetSessionID(s.ID)

	surface := feedback.NewSurface(noClock{}, nil)
	saveDir := t.TempDir()
	state := filepath.Join(t.TempDir(), "state.json")
	var out bytes.Buffer

	noSleep := func(ctx context.Context, d time.Duration) error { return nil }
	proc := NewProcessor(s, client, surface, artifact.DirSink{Dir: saveDir},
		WithStateFile(state),
		WithOutput(&out),
		WithDispatchOptions(dispatch.WithSleeper(noSleep)),
	)
	return &fixture{proc: proc, session: s, surface: surface, out: &out, saveDir: saveDir, state: state, imgDir: t.TempDir()}
}

func TestProcessorEndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a := writePNG(t, fx.imgDir, "a.png")
	b := writePNG(t, fx.imgDir, "b.png")

	res, err := fx.proc.Handle(ctx, Upload{Paths: []string{b, a}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if want := []string{"/static/uploads/a.png", "/static/uploads/b.png"}; !reflect.DeepEqual(res.ImageURLs, want) {
		t.Errorf("upload urls = %v, want %v", res.ImageURLs, want)
	}
	if !fx.surface.Controls().Enabled() {
		t.Error("controls disabled after successful upload")
	}

	res, err = fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.Normalization}})
	if err != nil {
		t.Fatalf("normalization: %v", err)
	}
	if want := []string{"normalization_a.png", "normalization_b.png"}; !reflect.DeepEqual(fx.session.State().Current, want) {
		t.Errorf("current = %v, want %v", fx.session.State().Current, want)
	}

	// Chaining operations always start from the originals.
	if _, err := fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.Augmentation, Variant: "flipping"}}); err != nil {
		t.Fatalf("augmentation: %v", err)
	}
	if want := []string{"flipping_a.png", "flipping_b.png"}; !reflect.DeepEqual(fx.session.State().Current, want) {
		t.Errorf("current after augmentation = %v, want %v", fx.session.State().Current, want)
	}

	res, err = fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.Detect}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Summary == nil {
		t.Fatal("detect returned no summary")
	}
	if got := *res.Outcome.Summary; got.Total != 2 || got.Positive != 1 {
		t.Errorf("summary = %+v, want 2 total 1 positive", got)
	}
	if got := fx.surface.Controls().Detect(); got != feedback.DetectSucceeded {
		t.Errorf("detect state = %v, want %v", got, feedback.DetectSucceeded)
	}
	if got := fx.surface.Notification().Message; got != res.Outcome.Summary.Text() {
		t.Errorf("notification = %q, want %q", got, res.Outcome.Summary.Text())
	}
	// Detection reads the derived set without replacing it.
	if want := []string{"flipping_a.png", "flipping_b.png"}; !reflect.DeepEqual(fx.session.State().Current, want) {
		t.Errorf("current after detect = %v, want %v", fx.session.State().Current, want)
	}

	loc, err := fx.proc.Handle(ctx, Download{URL: "/static/detect/flipping_a.png"})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(loc.Location)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png:flipping_a.png" {
		t.Errorf("downloaded = %q", data)
	}

	saved, err := session.Load(fx.state)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if saved.ID != fx.session.ID || !reflect.DeepEqual(saved.State(), fx.session.State()) {
		t.Errorf("saved state = %+v, want %+v", saved.State(), fx.session.State())
	}
}

func TestProcessorDownloadAll(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.proc.Handle(ctx, DownloadAll{}); !failure.IsType(err, failure.TypeDownload) {
		t.Errorf("download-all before results = %v, want download failure", err)
	}

	a := writePNG(t, fx.imgDir, "a.png")
	b := writePNG(t, fx.imgDir, "b.png")
	if _, err := fx.proc.Handle(ctx, Upload{Paths: []string{a, b}}); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.NoiseReduction}}); err != nil {
		t.Fatal(err)
	}

	res, err := fx.proc.Handle(ctx, DownloadAll{})
	if err != nil {
		t.Fatalf("download-all: %v", err)
	}
	if want := filepath.Join(fx.saveDir, DefaultBundleName); res.Location != want {
		t.Errorf("location = %q, want %q", res.Location, want)
	}

	zr, err := zip.OpenReader(res.Location)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	zr.RegisterDecompressor(93, zstd.ZipDecompressor())

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if want := []string{"noise_reduction_a.png", "noise_reduction_b.png"}; !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestProcessorDownloadAllNamedFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a := writePNG(t, fx.imgDir, "a.png")
	if _, err := fx.proc.Handle(ctx, Upload{Paths: []string{a}}); err != nil {
		t.Fatal(err)
	}

	cmd := DownloadAll{File: "week-12.zip"}
	if got := cmd.Name(); got != "download-all" {
		t.Errorf("Name() = %q, want download-all", got)
	}
	res, err := fx.proc.Handle(ctx, cmd)
	if err != nil {
		t.Fatalf("download-all: %v", err)
	}
	if want := filepath.Join(fx.saveDir, "week-12.zip"); res.Location != want {
		t.Errorf("location = %q, want %q", res.Location, want)
	}
	if _, err := os.Stat(res.Location); err != nil {
		t.Errorf("bundle not written: %v", err)
	}
}

func TestProcessorFailures(t *testing.T) {
	t.Run("operation before upload", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.proc.Handle(context.Background(), Dispatch{Request: operation.Request{Kind: operation.Detect}})
		if !failure.IsType(err, failure.TypeNoImagesUploaded) {
			t.Errorf("err = %v, want no images uploaded", err)
		}
		if fx.surface.Icon().Tag != feedback.Error {
			t.Errorf("icon = %v, want error", fx.surface.Icon().Tag)
		}
		if got := fx.surface.Controls().Detect(); got != feedback.DetectReady {
			t.Errorf("detect state = %v, want ready", got)
		}
	})

	t.Run("empty upload", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.proc.Handle(context.Background(), Upload{})
		if !failure.IsType(err, failure.TypeEmptySelection) {
			t.Errorf("err = %v, want empty selection", err)
		}
		if fx.surface.Controls().Enabled() {
			t.Error("controls enabled after failed upload")
		}
	})

	t.Run("missing path", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.proc.Handle(context.Background(), Upload{Paths: []string{filepath.Join(fx.imgDir, "nope.png")}})
		if err == nil {
			t.Fatal("expected error")
		}
		if fx.surface.Icon().Tag != feedback.Error {
			t.Errorf("icon = %v, want error", fx.surface.Icon().Tag)
		}
	})

	t.Run("application error clears derived set", func(t *testing.T) {
		fx := newFixture(t)
		ctx := context.Background()
		a := writePNG(t, fx.imgDir, "a.png")
		if _, err := fx.proc.Handle(ctx, Upload{Paths: []string{a}}); err != nil {
			t.Fatal(err)
		}
		if _, err := fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.Normalization}}); err != nil {
			t.Fatal(err)
		}

		_, err := fx.proc.Handle(ctx, Dispatch{Request: operation.Request{Kind: operation.SkullStripping}})
		if !failure.IsType(err, failure.TypeApplication) {
			t.Fatalf("err = %v, want application failure", err)
		}
		want := "Failed to perform skull stripping: model unavailable"
		if got := fx.surface.Notification().Message; got != want {
			t.Errorf("notification = %q, want %q", got, want)
		}
		if got := fx.session.State().Current; len(got) != 0 {
			t.Errorf("current = %v, want empty after failed chaining operation", got)
		}
		if !fx.surface.Controls().Enabled() {
			t.Error("controls not restored after failure")
		}
	})
}

func TestProcessorStatusAndDismiss(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.surface.Notify("hello")
	if _, err := fx.proc.Handle(ctx, Dismiss{}); err != nil {
		t.Fatal(err)
	}
	if got := fx.surface.Notification().Phase; got == feedback.Visible {
		t.Errorf("phase = %v after dismiss", got)
	}

	res, err := fx.proc.Handle(ctx, Status{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State == nil || len(res.State.Originals) != 0 {
		t.Errorf("state = %+v, want empty", res.State)
	}
	out := fx.out.String()
	for _, want := range []string{fx.session.ID, "Last operation", "disabled", "/static/favicon/idle.svg"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestProcessorRun(t *testing.T) {
	fx := newFixture(t)
	a := writePNG(t, fx.imgDir, "a.png")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmds := make(chan Command, 3)
	replies := make(chan Reply, 3)
	cmds <- Upload{Paths: []string{a}}
	cmds <- Dispatch{Request: operation.Request{Kind: operation.ArtifactRemoval}}
	cmds <- Dispatch{Request: operation.Request{Kind: operation.Detect}}
	close(cmds)

	if err := fx.proc.Run(ctx, cmds, replies); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	close(replies)

	var names []string
	for r := range replies {
		if r.Err != nil {
			t.Errorf("%s: %v", r.Command.Name(), r.Err)
		}
		names = append(names, r.Command.Name())
	}
	if want := []string{"upload", "artifact_removal", "detect"}; !reflect.DeepEqual(names, want) {
		t.Errorf("handled = %v, want %v", names, want)
	}
}

func TestProcessorRunCanceled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fx.proc.Run(ctx, make(chan Command), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{"upload a.png scans", Upload{Paths: []string{"a.png", "scans"}}, false},
		{"process noise_reduction", Dispatch{Request: operation.Request{Kind: operation.NoiseReduction}}, false},
		{"process detect", nil, true},
		{"process", nil, true},
		{"augment", Dispatch{Request: operation.Request{Kind: operation.Augmentation, Variant: "rotation"}}, false},
		{"augment scaling", Dispatch{Request: operation.Request{Kind: operation.Augmentation, Variant: "scaling"}}, false},
		{"augment twirl", nil, true},
		{"detect", Dispatch{Request: operation.Request{Kind: operation.Detect}}, false},
		{"download /static/a.png", Download{URL: "/static/a.png"}, false},
		{"download-all", DownloadAll{File: DefaultBundleName}, false},
		{"download-all out.zip", DownloadAll{File: "out.zip"}, false},
		{"status", Status{}, false},
		{"dismiss", Dismiss{}, false},
		{"frobnicate", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(strings.Fields(tt.line), "rotation")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

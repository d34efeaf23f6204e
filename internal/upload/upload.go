// Package upload sends the user's selected images to the imaging service and
// records the stored filenames as the session's originals.
package upload

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/dispatch"
	"github.com/fpang/scanprep/internal/failure"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/selection"
	"github.com/fpang/scanprep/internal/session"
)

// transportMessage is shown for any upload failure not reported by the server.
const transportMessage = "An error occurred while uploading the files."

// Service uploads a multipart batch.
type Service interface {
	Upload(ctx context.Context, parts []remote.Part) ([]string, error)
}

// Feedback is what the tracker reports to.
type Feedback interface {
	Signal(feedback.Tag)
	Notify(message string)
	SetControls(enabled bool) bool
}

// Tracker uploads images for one session. Uploads are never retried.
type Tracker struct {
	session  *session.Session
	service  Service
	feedback Feedback
	guard    *dispatch.Guard
}

// New creates a Tracker. guard is shared with the dispatcher so an upload
// and an operation never overlap; nil gives the tracker its own.
func New(s *session.Session, svc Service, fb Feedback, guard *dispatch.Guard) *Tracker {
	if guard == nil {
		guard = &dispatch.Guard{}
	}
	return &Tracker{session: s, service: svc, feedback: fb, guard: guard}
}

// Upload sends images as one request. On success the session's originals are
// replaced and the operation controls are enabled. It returns the stored
// image URLs.
func (t *Tracker) Upload(ctx context.Context, images []*selection.Image) ([]string, error) {
	if len(images) == 0 {
		err := failure.EmptySelection()
		t.feedback.Notify(err.Message)
		t.feedback.Signal(feedback.Error)
		return nil, err
	}
	if !t.guard.TryAcquire() {
		return nil, dispatch.ErrBusy
	}
	defer t.guard.Release()

	parts := make([]remote.Part, 0, len(images))
	for _, img := range images {
		f, err := img.Open()
		if err != nil {
			return nil, t.fail(failure.Transport("upload", 0, transportMessage, err))
		}
		defer f.Close()

		evt := log.Debug().Stringer("image", img)
		if m := img.Meta; m != nil {
			if m.HasDate {
				evt = evt.Time("dateTaken", m.DateTaken)
			}
			if m.CameraModel != "" {
				evt = evt.Str("camera", strings.TrimSpace(m.CameraMake+" "+m.CameraModel))
			}
		}
		evt.Msg("Adding image to upload")

		parts = append(parts, remote.Part{
			Filename:    img.Name,
			ContentType: img.ContentType,
			Body:        f,
		})
	}

	log.Info().Int("files", len(parts)).Msg("Uploading images")
	t.feedback.Signal(feedback.Processing)

	urls, err := t.service.Upload(ctx, parts)
	if err != nil {
		fe := failure.Retag("upload", err)
		if fe.Type != failure.TypeApplication {
			fe = failure.Transport("upload", fe.StatusCode, transportMessage, err)
		}
		return nil, t.fail(fe)
	}

	names := session.FilenamesFromURLs(urls)
	t.session.ReplaceOriginals(names)
	t.feedback.SetControls(true)
	t.feedback.Signal(feedback.Success)

	log.Info().Strs("filenames", names).Msg("Upload complete")
	return urls, nil
}

func (t *Tracker) fail(fe *failure.Error) error {
	log.Error().Err(fe).Str("type", fe.Type.String()).Msg("Upload failed")
	t.feedback.Notify(fe.Message)
	t.feedback.Signal(feedback.Error)
	return fe
}

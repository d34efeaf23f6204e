// Package failure classifies the ways a scanprep command can fail.
//
// Every terminal failure surfaced to the user is a *Error carrying one of the
// Type values below. EmptySelection and NoImagesUploaded are detected locally
// and never reach the network; Transport and Application drive the dispatch
// retry loop; Download is raised when saving a previously returned artifact.
package failure

import (
	"errors"
	"fmt"
)

// Type categorizes a failure.
type Type int

const (
	// TypeEmptySelection indicates an upload was requested with no files.
	TypeEmptySelection Type = iota
	// TypeNoImagesUploaded indicates an operation was requested before any successful upload.
	TypeNoImagesUploaded
	// TypeTransport indicates a network failure or a non-2xx HTTP status.
	TypeTransport
	// TypeApplication indicates a 2xx response whose body carries an error field.
	TypeApplication
	// TypeDownload indicates fetching or saving a result artifact failed.
	TypeDownload
)

func (t Type) String() string {
	switch t {
	case TypeEmptySelection:
		return "EmptySelection"
	case TypeNoImagesUploaded:
		return "NoImagesUploaded"
	case TypeTransport:
		return "TransportError"
	case TypeApplication:
		return "ApplicationError"
	case TypeDownload:
		return "DownloadError"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Error is a classified failure.
type Error struct {
	Type Type
	// Op names what was being attempted: an operation kind, an endpoint path,
	// "upload" or "download".
	Op      string
	Message string
	// StatusCode is the HTTP status for transport failures; 0 means the
	// request never produced a response.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EmptySelection reports an upload attempted with no files chosen.
func EmptySelection() *Error {
	return &Error{
		Type:    TypeEmptySelection,
		Op:      "upload",
		Message: "Please select at least one image!",
	}
}

// NoImagesUploaded reports an operation attempted before any successful upload.
func NoImagesUploaded(op string) *Error {
	return &Error{
		Type:    TypeNoImagesUploaded,
		Op:      op,
		Message: "Please upload images before applying processing!",
	}
}

// Transport reports a network failure (statusCode 0) or a non-2xx response.
func Transport(op string, statusCode int, message string, err error) *Error {
	return &Error{
		Type:       TypeTransport,
		Op:         op,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Application reports a successful HTTP exchange whose body carried an error.
func Application(op, message string) *Error {
	return &Error{
		Type:    TypeApplication,
		Op:      op,
		Message: message,
	}
}

// Download reports a failed artifact fetch or save.
func Download(url string, err error) *Error {
	return &Error{
		Type:    TypeDownload,
		Op:      "download",
		Message: "Failed to download image",
		Err:     fmt.Errorf("%s: %w", url, err),
	}
}

// As extracts a *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsType reports whether err's chain contains a *Error of type t.
func IsType(err error, t Type) bool {
	fe, ok := As(err)
	return ok && fe.Type == t
}

// Retag re-attributes err to op. A classified error keeps its type, message
// and status; anything else (context cancellation, local I/O) becomes a
// transport failure so it is still reported as a network-side problem.
func Retag(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return &Error{
			Type:       fe.Type,
			Op:         op,
			Message:    fe.Message,
			StatusCode: fe.StatusCode,
			Err:        fe.Err,
		}
	}
	return Transport(op, 0, err.Error(), err)
}

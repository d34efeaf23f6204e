// Package command handles user commands one at a time against a single
// session: uploads, operations, downloads and status queries all flow through
// a Processor so state changes happen on one logical thread.
package command

import (
	"fmt"

	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/selection"
)

// Command is a user request.
type Command interface {
	Name() string
}

// Upload sends the images found at Paths.
type Upload struct {
	Paths []string
	Scan  selection.ScanOptions
}

// Dispatch runs one operation.
type Dispatch struct {
	Request operation.Request
}

// Download saves one result image.
type Download struct {
	URL string
}

// DownloadAll bundles every image from the latest result into one zip
// archive named File.
type DownloadAll struct {
	File string
}

// Status reports the session's filename state.
type Status struct{}

// Dismiss closes the visible notification.
type Dismiss struct{}

func (Upload) Name() string      { return "upload" }
func (d Dispatch) Name() string  { return d.Request.String() }
func (Download) Name() string    { return "download" }
func (DownloadAll) Name() string { return "download-all" }
func (Status) Name() string      { return "status" }
func (Dismiss) Name() string     { return "dismiss" }

// DefaultBundleName is used by DownloadAll when no name is given.
const DefaultBundleName = "scanprep-results.zip"

// Parse turns a shell line into a Command. variant is the augmentation type
// used when "augment" is given without one.
func Parse(fields []string, variant string) (Command, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	args := fields[1:]
	switch fields[0] {
	case "upload":
		return Upload{Paths: args}, nil
	case "process":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: process <%s>", preprocessingNames())
		}
		kind, err := operation.Parse(args[0])
		if err != nil {
			return nil, err
		}
		if kind == operation.Augmentation || kind == operation.Detect {
			return nil, fmt.Errorf("%s is not a preprocessing variant", kind)
		}
		return Dispatch{Request: operation.Request{Kind: kind}}, nil
	case "augment":
		if len(args) > 0 {
			variant = args[0]
		}
		v, err := operation.ParseAugmentation(variant)
		if err != nil {
			return nil, err
		}
		return Dispatch{Request: operation.Request{Kind: operation.Augmentation, Variant: v}}, nil
	case "detect":
		return Dispatch{Request: operation.Request{Kind: operation.Detect}}, nil
	case "download":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: download <image url>")
		}
		return Download{URL: args[0]}, nil
	case "download-all":
		name := DefaultBundleName
		if len(args) > 0 {
			name = args[0]
		}
		return DownloadAll{File: name}, nil
	case "status":
		return Status{}, nil
	case "dismiss":
		return Dismiss{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

func preprocessingNames() string {
	s := ""
	for i, k := range operation.Preprocessing {
		if i > 0 {
			s += "|"
		}
		s += string(k)
	}
	return s
}

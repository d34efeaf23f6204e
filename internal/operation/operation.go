// Package operation defines the operations the remote imaging service can
// run against uploaded images and how each one maps onto the wire.
//
// Preprocessing variants and augmentation are chaining operations: their
// output images become the input of a later detection pass. Detection is the
// only non-chaining kind.
package operation

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind names an operation.
type Kind string

const (
	Normalization   Kind = "normalization"
	NoiseReduction  Kind = "noise_reduction"
	SkullStripping  Kind = "skull_stripping"
	ArtifactRemoval Kind = "artifact_removal"
	Augmentation    Kind = "augmentation"
	Detect          Kind = "detect"
)

// Preprocessing lists the preprocessing variants in display order.
var Preprocessing = []Kind{Normalization, NoiseReduction, SkullStripping, ArtifactRemoval}

// AugmentationVariants lists the augmentation types the service accepts.
var AugmentationVariants = []string{
	"rotation",
	"translation",
	"scaling",
	"flipping",
	"elastic_deformation",
	"intensity_adjustment",
	"noise_injection",
	"shearing",
	"random_cropping",
}

// DefaultAugmentation is used when no augmentation variant was selected.
const DefaultAugmentation = "rotation"

// All returns every kind in display order.
func All() []Kind {
	kinds := make([]Kind, 0, len(Preprocessing)+2)
	kinds = append(kinds, Preprocessing...)
	return append(kinds, Augmentation, Detect)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range All() {
		if k == known {
			return true
		}
	}
	return false
}

// Chaining reports whether a successful run of k produces the filename set
// used by a later detection pass.
func (k Kind) Chaining() bool {
	return k != Detect
}

// Endpoint returns the service path that runs k.
func (k Kind) Endpoint() string {
	switch k {
	case Augmentation:
		return "/augment"
	case Detect:
		return "/detect"
	default:
		return "/process"
	}
}

// Label renders k for messages ("noise reduction").
func (k Kind) Label() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// Title renders k for headings ("Noise Reduction").
func (k Kind) Title() string {
	return cases.Title(language.English).String(k.Label())
}

// Parse resolves a user-supplied kind name. Matching ignores case and treats
// '-' and ' ' like '_'.
func Parse(s string) (Kind, error) {
	k := Kind(normalize(s))
	if !k.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return k, nil
}

// ParseAugmentation resolves an augmentation variant name. An empty name
// selects DefaultAugmentation.
func ParseAugmentation(s string) (string, error) {
	v := normalize(s)
	if v == "" {
		return DefaultAugmentation, nil
	}
	for _, known := range AugmentationVariants {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown augmentation type %q", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// Request is one operation invocation.
type Request struct {
	Kind Kind
	// Variant is the augmentation type; ignored for other kinds.
	Variant string
}

// WireType is the value sent in the request body's "type" field.
func (r Request) WireType() string {
	if r.Kind == Augmentation {
		if r.Variant == "" {
			return DefaultAugmentation
		}
		return r.Variant
	}
	return string(r.Kind)
}

func (r Request) String() string {
	if r.Kind == Augmentation {
		return string(r.Kind) + "(" + r.WireType() + ")"
	}
	return string(r.Kind)
}

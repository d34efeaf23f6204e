// Package feedback presents the client's status to the user: a status icon,
// a single auto-dismissing notification, the operation controls, and the
// rendered results of the latest command.
package feedback

// Tag names a status icon.
type Tag string

const (
	Idle       Tag = "idle"
	Processing Tag = "processing"
	Success    Tag = "success"
	Error      Tag = "error"
)

// iconPathPrefix is where the service's web front end serves the icon assets.
const iconPathPrefix = "/static/favicon/"

// Icon is the resolved asset for a Tag.
type Icon struct {
	Tag   Tag
	Path  string
	Glyph string
}

var icons = map[Tag]Icon{
	Idle:       {Tag: Idle, Path: iconPathPrefix + "idle.svg", Glyph: "○"},
	Processing: {Tag: Processing, Path: iconPathPrefix + "processing.svg", Glyph: "◌"},
	Success:    {Tag: Success, Path: iconPathPrefix + "success.svg", Glyph: "✔"},
	Error:      {Tag: Error, Path: iconPathPrefix + "error.svg", Glyph: "✘"},
}

// Lookup resolves tag. ok is false for unknown tags.
func Lookup(tag Tag) (icon Icon, ok bool) {
	icon, ok = icons[tag]
	return icon, ok
}

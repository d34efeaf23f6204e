package feedback

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/fpang/scanprep/internal/reconcile"
)

var (
	iconStyles = map[Tag]lipgloss.Style{
		Idle:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Processing: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		Success:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	headingStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal renders feedback as lines of text. Styling is applied only when
// the writer is a terminal.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	colorize bool
}

// NewTerminal creates a renderer writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, colorize: shouldColorize(w)}
}

func (t *Terminal) Icon(icon Icon) {
	t.println(t.paint(iconStyles[icon.Tag], icon.Glyph+" "+string(icon.Tag)))
}

func (t *Terminal) Notification(message string) {
	t.println(t.paint(noticeStyle, message))
}

func (t *Terminal) Controls(enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	t.println(t.paint(mutedStyle, "controls "+state))
}

func (t *Terminal) Saved(location string, size int64) {
	t.println(fmt.Sprintf("saved %s (%s)", location, humanize.Bytes(uint64(size))))
}

func (t *Terminal) Outcome(out *reconcile.Outcome) {
	var b strings.Builder
	b.WriteString(t.paint(headingStyle, out.Kind.Title()))
	b.WriteByte('\n')

	if out.Summary == nil {
		for _, u := range out.ResultURLs {
			fmt.Fprintf(&b, "  %s\n", u)
		}
		t.print(b.String())
		return
	}

	rows := make([][]string, 0, len(out.Findings))
	for _, f := range out.Findings {
		caption := f.Caption()
		if f.TumorDetected {
			caption = t.paint(positiveStyle, caption)
		} else {
			caption = t.paint(negativeStyle, caption)
		}
		rows = append(rows, []string{f.ImageURL, caption, strings.Join(f.DetailLines(), "\n")})
	}
	b.WriteString(RenderTable([]string{"Image", "Result", "Details"}, rows, nil))
	b.WriteByte('\n')
	t.print(b.String())
}

func (t *Terminal) paint(style lipgloss.Style, s string) string {
	if !t.colorize {
		return s
	}
	return style.Render(s)
}

func (t *Terminal) println(line string) {
	t.print(line + "\n")
}

func (t *Terminal) print(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.w, s)
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

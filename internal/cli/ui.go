package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorTeal  = lipgloss.Color("36")
	colorGreen = lipgloss.Color("35")
	colorAmber = lipgloss.Color("220")
	colorRed   = lipgloss.Color("167")
	colorBlue  = lipgloss.Color("75")
	colorWhite = lipgloss.Color("255")
	colorGray  = lipgloss.Color("245")
	colorMuted = lipgloss.Color("240")
)

var (
	// StyleTitle for headings such as "Session <id>".
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)

	// StyleHighlight for names the user typed or will type.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorTeal)

	// StyleDim for counts and other secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorMuted)

	// StyleValue for paths and ids.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for dead ends, skipped features and similar.
	StyleWarning = lipgloss.NewStyle().Foreground(colorAmber)
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(colorGreen)
	styleFail    = lipgloss.NewStyle().Foreground(colorRed)
	styleNote    = lipgloss.NewStyle().Foreground(colorGray)
	styleSpinner = lipgloss.NewStyle().Foreground(colorTeal)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleStage   = lipgloss.NewStyle().Foreground(colorGray).Width(10)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

// =============================================================================
// Console
// =============================================================================

// console writes the human-readable status lines of a command. Logs go to
// the logger; results go here.
type console struct {
	w io.Writer
}

func newConsole(w io.Writer) console { return console{w: w} }

func (c console) line(s string) { fmt.Fprintln(c.w, s) }

func (c console) success(format string, args ...any) {
	c.line(styleOK.Render("✓") + " " + fmt.Sprintf(format, args...))
}

func (c console) failure(format string, args ...any) {
	c.line(styleFail.Render("✗") + " " + fmt.Sprintf(format, args...))
}

func (c console) warning(format string, args ...any) {
	c.line(StyleWarning.Render("! " + fmt.Sprintf(format, args...)))
}

func (c console) info(format string, args ...any) {
	c.line(styleNote.Render("›") + " " + fmt.Sprintf(format, args...))
}

// detail prints an indented, dimmed line.
func (c console) detail(format string, args ...any) {
	c.line("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// file prints "  → path" for a written output.
func (c console) file(path string) {
	c.line("  " + StyleDim.Render("→") + " " + StyleValue.Render(path))
}

func (c console) keyValue(key, value string) {
	c.line(styleKey.Render(key) + " " + StyleValue.Render(value))
}

// nextStep suggests the command that usually follows.
func (c console) nextStep(cmd string) {
	c.line(StyleDim.Render("Next:") + " " + styleCommand.Render(cmd))
}

// stats prints "  N nodes · M edges".
func (c console) stats(nodes, edges int) {
	c.line("  " + graphCounts(nodes, edges))
}

// stage prints one line of a multi-stage run, marking cache hits.
func (c console) stage(stage string, nodes, edges int, cached bool) {
	source := styleNote.Render("computed")
	if cached {
		source = styleOK.Render("cached")
	}
	c.line("  " + styleStage.Render(stage) + graphCounts(nodes, edges) + StyleDim.Render(" · ") + source)
}

func graphCounts(nodes, edges int) string {
	return strings.Join([]string{
		StyleDim.Render(plural(nodes, "node")),
		StyleDim.Render(plural(edges, "edge")),
	}, StyleDim.Render(" · "))
}

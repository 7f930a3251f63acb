package ui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// maxReadableWidth caps word wrap for rendered issue bodies.
const maxReadableWidth = 100

// RenderMarkdown renders markdown text using glamour.
// Returns the original text if rendering fails or colors are disabled.
func RenderMarkdown(markdown string) string {
	if IsAgentMode() || !ShouldUseColor() {
		return markdown
	}

	style := "dark"
	if !DarkBackground() {
		style = "light"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth()),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

// wrapWidth is the terminal width, 80 when unknown, capped at
// maxReadableWidth.
func wrapWidth() int {
	w := 80
	if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && tw > 0 {
		w = tw
	}
	if w > maxReadableWidth {
		w = maxReadableWidth
	}
	return w
}

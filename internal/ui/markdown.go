package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
)

// Markdown renders md for the terminal, returning md unchanged if rendering fails.
func Markdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func RenderMarkdown(md string) {
	fmt.Fprint(os.Stdout, Markdown(md))
}

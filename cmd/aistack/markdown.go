package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// markdownRenderer wraps glamour for terminal markdown rendering, falling
// back to plain text when stdout is not a terminal.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer() (*markdownRenderer, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return &markdownRenderer{}, nil
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &markdownRenderer{renderer: r}, nil
}

func (m *markdownRenderer) print(markdown string) error {
	if m.renderer == nil {
		fmt.Println(markdown)
		return nil
	}
	out, err := m.renderer.Render(markdown)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

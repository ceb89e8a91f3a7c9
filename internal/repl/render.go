package repl

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"

	"digitaltwin/internal/logger"
)

// DefaultWordWrap is the rendering width used for replies.
const DefaultWordWrap = 80

// Renderer turns markdown replies into terminal output.
type Renderer struct {
	tr *glamour.TermRenderer
}

// StyleFor picks a glamour style for a terminal color profile and background.
func StyleFor(profile termenv.Profile, darkBackground bool) string {
	switch {
	case profile == termenv.Ascii:
		return styles.NoTTYStyle
	case darkBackground:
		return styles.DarkStyle
	default:
		return styles.LightStyle
	}
}

// DetectStyle inspects the environment and the terminal background.
func DetectStyle() string {
	profile := termenv.EnvColorProfile()
	if profile == termenv.Ascii {
		return styles.NoTTYStyle
	}
	return StyleFor(profile, termenv.HasDarkBackground())
}

// NewRenderer creates a markdown renderer with a standard glamour style.
func NewRenderer(style string, width int) (*Renderer, error) {
	if width <= 0 {
		width = DefaultWordWrap
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	logger.Debug("Markdown renderer ready", "style", style, "width", width)
	return &Renderer{tr: tr}, nil
}

// NewPlainRenderer returns a renderer that prints replies unchanged.
func NewPlainRenderer() *Renderer {
	return &Renderer{}
}

// Render renders markdown. Rendering failures fall back to the raw text.
func (r *Renderer) Render(markdown string) string {
	if r == nil || r.tr == nil || strings.TrimSpace(markdown) == "" {
		return markdown
	}
	out, err := r.tr.Render(markdown)
	if err != nil {
		logger.Debug("Markdown rendering failed, printing raw reply", "error", err)
		return markdown
	}
	return out
}

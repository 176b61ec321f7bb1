package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Styles accepted by Render. "plain" returns the markdown untouched.
var Styles = []string{"plain", "ascii", "notty", "dark", "light", "auto"}

// Render formats markdown for a terminal in the named glamour style.
func Render(md, style string) (string, error) {
	switch style {
	case "", "plain":
		return md, nil
	case "auto":
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return "", fmt.Errorf("renderer: %w", err)
		}
		return r.Render(md)
	}

	out, err := glamour.Render(md, style)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", style, err)
	}
	return out, nil
}

package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorValue  = 250 // light gray
	colorMuted  = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color. Used for paths and keys.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderValue returns s styled as a stored value (light gray).
func RenderValue(s string) string { return paint(colorValue, s) }

// RenderCommand returns s styled as a command name in help output.
func RenderCommand(s string) string { return paint(colorValue, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// FormatJSON indents a JSON document for display. A nil document renders as
// a muted "(none)"; invalid input is returned as-is.
func FormatJSON(raw json.RawMessage) string {
	if raw == nil {
		return RenderMuted("(none)")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return RenderValue(string(raw))
	}
	return RenderValue(buf.String())
}

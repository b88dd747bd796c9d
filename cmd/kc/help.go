package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/ui"
)

// helpRule restyles every match of re; style receives the submatches.
type helpRule struct {
	re    *regexp.Regexp
	style func(m []string) string
}

// helpRules are applied in order to Cobra's plain usage text.
var helpRules = []helpRule{
	// Group and section headers ("Configuration:", "Flags:").
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), func(m []string) string {
		return ui.RenderAccent(m[1])
	}},
	// Command names in a command list.
	{regexp.MustCompile(`(?m)^(  )(\S+)(  )`), func(m []string) string {
		return m[1] + ui.RenderCommand(m[2]) + m[3]
	}},
	// Flag value types ("--server string").
	{regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringArray)\b`), func(m []string) string {
		return m[1] + ui.RenderMuted(m[2])
	}},
	// Defaults.
	{regexp.MustCompile(`\(default [^)]*\)`), func(m []string) string {
		return ui.RenderMuted(m[0])
	}},
}

func colorizeHelp(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}

// colorizedHelpFunc renders Cobra's usage text, colorized when stdout
// supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

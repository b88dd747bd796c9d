package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/ui"
)

// maxListValue is the width at which list output truncates values.
const maxListValue = 60

// valueOutput is the --json shape of get, set and update.
type valueOutput struct {
	Namespace string          `json:"namespace"`
	UserID    string          `json:"user_id,omitempty"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
}

func namespaceOf(user string) string {
	if user == "" {
		return "global"
	}
	return "user"
}

func printValue(w io.Writer, user, key string, value json.RawMessage) error {
	if jsonOutput {
		return writeIndentedJSON(w, valueOutput{Namespace: namespaceOf(user), UserID: user, Key: key, Value: value})
	}
	_, err := fmt.Fprintln(w, ui.FormatJSON(value))
	return err
}

func printEntries(w io.Writer, entries []*model.Entry) error {
	if jsonOutput {
		if entries == nil {
			entries = []*model.Entry{}
		}
		return writeIndentedJSON(w, entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no entries")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tID\tVALUE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ui.RenderAccent(e.Path), ui.RenderMuted(e.ID), compactValue(e.Value))
	}
	return tw.Flush()
}

// compactValue renders v on one line, truncated to maxListValue runes.
func compactValue(v json.RawMessage) string {
	if v == nil {
		return "-"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		buf.Reset()
		buf.Write(v)
	}
	s := []rune(buf.String())
	if len(s) > maxListValue {
		return string(s[:maxListValue-3]) + "..."
	}
	return string(s)
}

func writeIndentedJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

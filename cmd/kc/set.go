package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// newWriteCmd builds set and update, which differ only in the client call.
func newWriteCmd(use, short string, write func(ctx context.Context, user, key string, value json.RawMessage) (json.RawMessage, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use + " <key> <value>",
		Short:   short,
		GroupID: "data",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asString, _ := cmd.Flags().GetBool("string")
			value, err := parseValue(args[1], asString)
			if err != nil {
				return err
			}
			out, err := write(cmd.Context(), userID, args[0], value)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), userID, args[0], out)
		},
	}
	cmd.Flags().Bool("string", false, "treat <value> as a plain string")
	return cmd
}

var setCmd = newWriteCmd("set", "Replace the value at a key",
	func(ctx context.Context, user, key string, value json.RawMessage) (json.RawMessage, error) {
		return configClient.Set(ctx, user, key, value)
	})

var updateCmd = newWriteCmd("update", "Merge a JSON object into the object at a key",
	func(ctx context.Context, user, key string, value json.RawMessage) (json.RawMessage, error) {
		return configClient.Update(ctx, user, key, value)
	})

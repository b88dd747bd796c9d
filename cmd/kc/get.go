package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// parseValue interprets a command-line value. With asString the argument is
// taken literally as a JSON string; otherwise it must be a JSON document.
func parseValue(arg string, asString bool) (json.RawMessage, error) {
	if asString {
		return json.RawMessage(strconv.Quote(arg)), nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("value must be valid JSON (use --string for plain text): %s", arg)
	}
	return json.RawMessage(arg), nil
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a value, storing --default first if the key is missing",
	Long: `Get returns the value stored at key. When the key does not exist and
--default is given, the default is written and returned.`,
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var def json.RawMessage
		if cmd.Flags().Changed("default") {
			raw, _ := cmd.Flags().GetString("default")
			asString, _ := cmd.Flags().GetBool("string")
			v, err := parseValue(raw, asString)
			if err != nil {
				return err
			}
			def = v
		}

		value, err := configClient.Get(cmd.Context(), userID, key, def)
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), userID, key, value)
	},
}

func init() {
	getCmd.Flags().String("default", "", "JSON document to store when the key is missing")
	getCmd.Flags().Bool("string", false, "treat --default as a plain string")
}

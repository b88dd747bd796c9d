package main

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/kconf/internal/config"
)

var configCmd = &cobra.Command{
	Use:               "config",
	Short:             "Inspect the server configuration",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the server configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(config.Schema(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective server configuration with secrets masked",
	Long: `Print the configuration "kc serve" would run with, after the config
file (KCONF_CONFIG_FILE) and KCONF_* environment overrides are applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		masked := *cfg
		if masked.DB.Password != "" {
			masked.DB.Password = "********"
		}
		masked.AuthToken = maskToken(masked.AuthToken)

		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		switch format {
		case "toml":
			return toml.NewEncoder(out).Encode(&masked)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(&masked); err != nil {
				return err
			}
			return enc.Close()
		default:
			return fmt.Errorf("unknown format %q (must be toml or yaml)", format)
		}
	},
}

func init() {
	configShowCmd.Flags().String("format", "toml", "output format (toml or yaml)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSchemaCmd)
}

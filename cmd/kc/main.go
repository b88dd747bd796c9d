package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/client"
	"github.com/alfredjeanlab/kconf/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	token      string
	jsonOutput bool
	userID     string

	configClient client.ConfigClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("KCONF_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().HTTPURL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("KCONF_SERVER"); s != "" {
		return s
	}
	if u := activeRemote().GRPCAddr; u != "" {
		return u
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("KCONF_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

// newClient builds the client for the selected transport.
func newClient() (client.ConfigClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, token), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, token)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

// skipClient is installed as PersistentPreRunE on commands that never talk to
// a server.
func skipClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:          "kc <command>",
	Short:        "CLI for the kconf configuration service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		configClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if configClient != nil {
			configClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "operate on this user's namespace instead of the global one")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Configuration:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Configuration
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

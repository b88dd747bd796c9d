package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/events"
)

var watchCmd = &cobra.Command{
	Use:     "watch [key-prefix]",
	Short:   "Stream configuration changes from NATS",
	GroupID: "data",
	Args:    cobra.MaximumNArgs(1),
	// Watching only needs NATS.
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("KCONF_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemote().NATSURL
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats, set KCONF_NATS_URL, or configure a remote")
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		sub, err := events.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (Ctrl-C to stop)\n", natsURL)
		err = events.WatchEntries(ctx, sub, func(ev events.EntryChanged) {
			if matchesWatch(ev, userID, prefix) {
				printChange(out, ev)
			}
		}, func(err error) {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping event: %v\n", err)
		})
		return err
	},
}

// matchesWatch filters by namespace and key prefix. An empty user matches
// the global namespace only.
func matchesWatch(ev events.EntryChanged, user, prefix string) bool {
	if user == "" {
		if ev.Namespace != events.NamespaceGlobal {
			return false
		}
	} else if ev.Namespace != events.NamespaceUser || ev.UserID != user {
		return false
	}
	return strings.HasPrefix(ev.Key, prefix)
}

func printChange(w io.Writer, ev events.EntryChanged) {
	if jsonOutput {
		_ = writeIndentedJSON(w, ev)
		return
	}
	fmt.Fprintf(w, "%s %-7s %s %s\n",
		ev.Time.Local().Format("15:04:05"), ev.Mode, ev.Key, compactValue(ev.Value))
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL (defaults to KCONF_NATS_URL or the active remote)")
}

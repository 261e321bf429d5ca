// Command chatsync is a terminal client for connectly: it logs in, follows a
// channel or conversation live and sends messages.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	server   string
	token    string
	livePath string
}

func NewChatsyncCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "chatsync",
		Short:        "Follow and post to connectly channels from the terminal",
		Example:      "chatsync tail --server-id s1 --channel c1",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "url", envOr("CONNECTLY_URL", "http://localhost:8084"), "server base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CONNECTLY_TOKEN"), "session token (see login)")
	cmd.PersistentFlags().StringVar(&opts.livePath, "live-path", "/api/socket/io", "live channel path")

	cmd.AddCommand(
		newLoginCommand(opts),
		newTailCommand(opts),
		newSendCommand(opts),
	)
	return cmd
}

func main() {
	if err := NewChatsyncCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xtplay/internal/relay"
)

var flagListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the HTTP relay that forwards portal requests",
	Long: `Run a relay that fetches portal URLs on behalf of clients:

  GET /relay?url=<portal URL>

Point other xtplay installs at it with --relay http://<host>:<port>/relay.`,
	Args: cobra.NoArgs,
	RunE: relayRun,
}

func init() {
	relayCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default from config, 127.0.0.1:8787)")
}

func relayRun(cmd *cobra.Command, args []string) error {
	addr := cfg.Relay.Listen
	if flagListen != "" {
		addr = flagListen
	}

	srv := relay.New(relay.Options{
		UpstreamTimeout: cfg.Relay.UpstreamTimeout.Duration,
		RateLimit:       cfg.Relay.RateLimit,
		UserAgent:       cfg.Transport.UserAgent,
	})
	fmt.Fprintf(os.Stderr, "Relay on http://%s/relay (Ctrl+C to stop)\n", addr)
	return srv.ListenAndServe(cmd.Context(), addr)
}

// Command blabberctl is the command-line front end for the blabber object
// store: it opens a database file and runs exactly one operation per
// invocation, the same contract the embedding host's synchronous object
// API exposes in-process.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mbeckem/blabber/internal/metrics"
	"github.com/mbeckem/blabber/internal/xlog"

	"github.com/mbeckem/blabber"
)

// registry collects every Collector instantiated during this process's
// lifetime, so the serve subcommand's /metrics endpoint can expose them
// regardless of which other subcommand (if any) ran first.
var registry = prometheus.NewRegistry()

func prometheusRegisterer() prometheus.Registerer { return registry }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "blabberctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "blabberctl",
		Short: "Inspect and drive a blabber post/comment store from the command line",
		Long: `blabberctl opens a blabber database file and runs one create_post,
create_comment, fetch_frontpage, fetch_post, or dump operation against it,
or serves the engine's Prometheus metrics for a long-running process.`,
	}

	bindGlobalFlags(root, v)

	root.AddCommand(
		newCreatePostCmd(v),
		newCreateCommentCmd(v),
		newFrontpageCmd(v),
		newPostCmd(v),
		newDumpCmd(v),
		newServeCmd(v),
	)
	return root
}

// openDB opens the database file named by cfg, wiring the structured
// logger and Prometheus collector every subcommand shares.
func openDB(cfg config) (*blabber.DB, error) {
	logger := xlog.New(xlog.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	collector := metrics.NewCollector(prometheusRegisterer())

	opts := blabber.DefaultOptions()
	opts.CacheBlocks = cfg.CacheBlocks
	opts.SyncOnCommit = cfg.SyncOnCommit
	opts.EncryptionKeyFile = cfg.EncryptionKeyFile
	opts.Logger = logger
	opts.Metrics = collector

	return blabber.Open(cfg.DBPath, opts)
}

package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config is the resolved set of options every subcommand reads, merged in
// priority order: command-line flag > config file / environment variable
// (via viper) > default.
type config struct {
	DBPath            string
	CacheBlocks       int
	SyncOnCommit      bool
	EncryptionKeyFile string
	LogLevel          string
	LogPretty         bool
	MetricsAddr       string
}

// bindGlobalFlags registers the persistent flags every subcommand shares
// and binds them into v, so a value from --config or BLABBER_* env takes
// effect whenever the flag itself is left at its default.
func bindGlobalFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("db", "blabber.db", "path to the database file")
	flags.Int("cache-blocks", 256, "number of blocks pinned in the engine cache")
	flags.Bool("sync-on-commit", true, "fsync the block device on every commit")
	flags.String("encryption-key-file", "", "path to a 32-byte (raw or hex) AES-256 key encrypting journal pre-images at rest")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "human-readable console logging instead of JSON")
	flags.String("metrics-addr", "127.0.0.1:9090", "address for the serve subcommand's /metrics endpoint")
	flags.String("config", "", "path to a YAML config file (overrides BLABBER_CONFIG)")

	for _, name := range []string{"db", "cache-blocks", "sync-on-commit", "encryption-key-file", "log-level", "log-pretty", "metrics-addr"} {
		v.BindPFlag(name, flags.Lookup(name))
	}
}

// loadConfig resolves a config file (if --config or BLABBER_CONFIG points
// at one) and environment overrides, then merges them with the flags
// already bound to v, and unmarshals the result.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (config, error) {
	v.SetEnvPrefix("blabber")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Flags() rather than PersistentFlags(): --config is declared on the
	// root command and only appears in a subcommand's merged flag set.
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("BLABBER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return config{}, err
		}
	}

	return config{
		DBPath:            v.GetString("db"),
		CacheBlocks:       v.GetInt("cache-blocks"),
		SyncOnCommit:      v.GetBool("sync-on-commit"),
		EncryptionKeyFile: v.GetString("encryption-key-file"),
		LogLevel:          v.GetString("log-level"),
		LogPretty:         v.GetBool("log-pretty"),
		MetricsAddr:       v.GetString("metrics-addr"),
	}, nil
}

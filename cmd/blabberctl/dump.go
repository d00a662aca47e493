package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDumpCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print a human-readable snapshot of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.DBPath, err)
			}
			defer db.Finish()

			return db.Dump(os.Stdout)
		},
	}
	return cmd
}

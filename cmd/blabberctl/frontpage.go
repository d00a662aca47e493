package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFrontpageCmd(v *viper.Viper) *cobra.Command {
	var maxPosts int

	cmd := &cobra.Command{
		Use:   "frontpage",
		Short: "List the newest posts",
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

			entries, err := db.FetchFrontpage(maxPosts)
			if err != nil {
				return describeError(err)
			}

			for _, e := range entries {
				fmt.Printf("%d\t%s\t%s\t%d\n", e.ID, e.User, e.Title, e.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPosts, "max-posts", 20, "maximum number of posts to list")
	return cmd
}

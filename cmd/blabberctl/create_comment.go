package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCreateCommentCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-comment POST_ID USER CONTENT",
		Short: "Append a comment to an existing post",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid post id %q: %w", args[0], err)
			}

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.DBPath, err)
			}
			defer db.Finish()

			if err := db.CreateComment(postID, args[1], args[2]); err != nil {
				return describeError(err)
			}
			return nil
		},
	}
	return cmd
}

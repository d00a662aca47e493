package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPostCmd(v *viper.Viper) *cobra.Command {
	var maxComments int

	cmd := &cobra.Command{
		Use:   "post POST_ID",
		Short: "Show a post and its newest comments",
		Args:  cobra.ExactArgs(1),
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

			result, err := db.FetchPost(postID, maxComments)
			if err != nil {
				return describeError(err)
			}

			fmt.Printf("id=%d user=%q title=%q created_at=%d\n", result.ID, result.User, result.Title, result.CreatedAt)
			fmt.Println(result.Content)
			for _, c := range result.Comments {
				fmt.Printf("  %s (%d): %s\n", c.User, c.CreatedAt, c.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxComments, "max-comments", 20, "maximum number of comments to show")
	return cmd
}

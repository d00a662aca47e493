package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mbeckem/blabber"
)

func newCreatePostCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-post USER TITLE CONTENT",
		Short: "Create a new post and print its id",
		Args:  cobra.ExactArgs(3),
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

			id, err := db.CreatePost(args[0], args[1], args[2])
			if err != nil {
				return describeError(err)
			}

			fmt.Println(id)
			return nil
		},
	}
	return cmd
}

// describeError maps the handful of sentinel errors the public API returns
// to a message naming them directly, so a CLI user sees the same error
// kind the embedding host's API contract documents.
func describeError(err error) error {
	switch {
	case errors.Is(err, blabber.ErrNotFound):
		return fmt.Errorf("not found: %w", err)
	case errors.Is(err, blabber.ErrStringTooLarge):
		return fmt.Errorf("string too large: %w", err)
	case errors.Is(err, blabber.ErrClockError):
		return fmt.Errorf("clock error: %w", err)
	case errors.Is(err, blabber.ErrIdSpaceExhausted):
		return fmt.Errorf("id space exhausted: %w", err)
	case errors.Is(err, blabber.ErrInternalInvariant):
		return fmt.Errorf("internal invariant violated: %w", err)
	default:
		return err
	}
}

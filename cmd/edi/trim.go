package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edi-chat/edi/internal/config"
	"github.com/edi-chat/edi/internal/model/chat"
	"github.com/edi-chat/edi/internal/service/conversation"
)

// trimCmd is the explicit recovery path when the provider rejects the
// replayed context as too large. Truncation never happens on its own.
var trimCmd = &cobra.Command{
	Use:   "trim <n>",
	Short: "Drop the n oldest turns from the saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid turn count %q", args[0])
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		store := chat.NewFileStore(cfg.SessionPath())
		removed, err := conversation.Trim(store, n)
		if err != nil {
			return err
		}

		fmt.Printf("Dropped %d turns from %s\n", removed, store.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trimCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavault/wavault/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		fmt.Printf("  Conversations: %d\n", stats.ConversationCount)
		fmt.Printf("  Messages:      %d\n", stats.MessageCount)
		fmt.Printf("  Media files:   %d\n", stats.MediaCount)
		fmt.Printf("  Size:          %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavault/wavault/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the wavault database with the required schema.

This command creates the tables for conversations and messages. It is safe
to run multiple times - tables are only created if they don't already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabasePath()
		logger.Info("initializing database", "path", dbPath)

		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		logger.Info("database initialized successfully")

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n", dbPath)
		fmt.Printf("  Conversations: %d\n", stats.ConversationCount)
		fmt.Printf("  Messages:      %d\n", stats.MessageCount)
		fmt.Printf("  Media files:   %d\n", stats.MediaCount)
		fmt.Printf("  Size:          %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}

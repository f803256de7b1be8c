package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavault/wavault/internal/gateway"
)

var statusGroups bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the messaging gateway connection status",
	Long: `Query the configured messaging gateway for the state of the connected
account. Requires [gateway] base_url (and usually auth_token) in config.toml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := gateway.New(
			cfg.Gateway.BaseURL,
			cfg.Gateway.AuthToken,
			cfg.Gateway.TimeoutSec,
			cfg.Gateway.VerifyTLS,
		)
		if !client.Configured() {
			return fmt.Errorf("no gateway configured: set [gateway] base_url in config.toml")
		}

		status, err := client.InstanceStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("query gateway: %w", err)
		}

		fmt.Printf("Gateway: %s\n", cfg.Gateway.BaseURL)
		fmt.Printf("  Instance: %s\n", status.InstanceID)
		fmt.Printf("  Phone:    %s\n", status.Phone)
		fmt.Printf("  State:    %s\n", status.State)
		if status.Battery > 0 {
			fmt.Printf("  Battery:  %d%%\n", status.Battery)
		}

		if !statusGroups {
			return nil
		}

		groups, err := client.ListGroups(cmd.Context())
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}
		fmt.Printf("\nGroups: %d\n", len(groups))
		for _, g := range groups {
			fmt.Printf("  %-40s %s (%d participants)\n", g.Name, g.ID, g.Participants)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusGroups, "groups", false, "also list group chats")
	rootCmd.AddCommand(statusCmd)
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskforge/handoff/internal/infrastructure/di"
)

func newReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run a single expiration sweep",
		Long:  "Escalate expired pending batches per the timeout policy and purge records past retention, then exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer(globalConfig)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer container.Close()

			stats, err := container.ReaperService().RunOnce(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("auto-resolved:        %d\n", stats.AutoApproved)
			fmt.Printf("retired executions:   %d\n", stats.RetiredExecutions)
			fmt.Printf("retired approvals:    %d\n", stats.RetiredApprovals)
			return nil
		},
	}
}

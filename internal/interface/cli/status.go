package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/handoff/internal/infrastructure/di"
)

type statusOutput struct {
	Ts            string `json:"ts"`
	PendingCount  int    `json:"pending_count"`
	ApprovedCount int    `json:"approved_count"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer(globalConfig)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer container.Close()

			counts, err := container.HandoffService().Counts(context.Background())
			if err != nil {
				return err
			}

			if jsonOutput {
				output := statusOutput{
					Ts:            time.Now().UTC().Format(time.RFC3339),
					PendingCount:  counts.PendingCount,
					ApprovedCount: counts.ApprovedCount,
				}
				b, _ := json.Marshal(output)
				fmt.Println(string(b))
				return nil
			}

			fmt.Printf("pending executions:  %d\n", counts.PendingCount)
			fmt.Printf("stored approvals:    %d\n", counts.ApprovedCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

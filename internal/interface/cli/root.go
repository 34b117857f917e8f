package cli

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/taskforge/handoff/internal/app/config"
	"github.com/taskforge/handoff/internal/interface/cli/version"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

func NewRoot() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Execution handoff store",
		Long:  "Durable mailbox for human review: deposit a batch, collect a decision, retrieve it exactly once.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: config file > ENV > defaults
			cfg, err := config.Load(afero.NewOsFs(), configPath)
			if err != nil {
				return err
			}
			globalConfig = cfg
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "handoff.yaml", "path to the configuration file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReapCmd())
	cmd.AddCommand(version.NewCommand())
	return cmd
}

package daemon

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ubuntu/insights-inventory/internal/constants"
)

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + constants.StoreCmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", constants.StoreCmdName, constants.Version)
			return nil
		},
	}
	a.cmd.AddCommand(cmd)
}

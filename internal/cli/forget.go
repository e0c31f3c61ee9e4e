package cli

import (
	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/cli/common"
	"stackit.dev/gitgate/internal/runtime"
)

// newForgetCmd creates the forget command
func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget [question...]",
		Short: "Forget remembered answers so gitgate asks again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				if err := ctx.Config.Forget(args...); err != nil {
					return err
				}
				if len(args) == 0 {
					ctx.Splog.Info("Forgot all remembered answers")
				} else {
					for _, id := range args {
						ctx.Splog.Info("Forgot %s", id)
					}
				}
				return nil
			})
		},
	}
}

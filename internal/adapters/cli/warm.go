package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newWarmCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "warm <persona>...",
		Short: "Embed personas ahead of time so later loads hit the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withBackend(cmd.Context(), func(b Backend) error {
				var errs []error
				for _, identity := range args {
					index, err := b.Warm(cmd.Context(), identity)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", identity, err)
						errs = append(errs, err)
						continue
					}
					source := "embedded"
					if index.FromCache {
						source = "cached"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks (%s)\n", identity, index.Len(), source)
				}
				return errors.Join(errs...)
			})
		},
	}
}

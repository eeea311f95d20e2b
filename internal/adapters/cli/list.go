package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persona documents and configured characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withBackend(cmd.Context(), func(b Backend) error {
				personas, err := b.ListPersonas(cmd.Context())
				if err != nil {
					return fmt.Errorf("list personas: %w", err)
				}
				characters, err := b.ListCharacters(cmd.Context())
				if err != nil {
					return fmt.Errorf("list characters: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Personas:")
				printList(cmd, personas)
				if characters != nil {
					fmt.Fprintln(out, "Characters:")
					printList(cmd, characters)
				}
				return nil
			})
		},
	}
}

func printList(cmd *cobra.Command, items []string) {
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", item)
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

type queryCommander struct {
	root   *rootCommander
	asJSON bool
}

func newQueryCmd(root *rootCommander) *cobra.Command {
	cmder := &queryCommander{root: root}

	cmd := &cobra.Command{
		Use:   "query <persona> <text>...",
		Short: "Load a persona and print the retrieved context for one query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := args[0]
			text := strings.Join(args[1:], " ")

			return root.withBackend(cmd.Context(), func(b Backend) error {
				warnDegraded(cmd.ErrOrStderr(), b)

				session := b.Session(root.user)
				if err := session.LoadPersona(cmd.Context(), identity); err != nil {
					return err
				}
				result, err := session.Query(cmd.Context(), text)
				if err != nil {
					return err
				}
				return cmder.print(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func (c *queryCommander) print(w io.Writer, result *domain.QueryResult) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(w, result)
	return nil
}

func printResult(w io.Writer, result *domain.QueryResult) {
	if !result.HasContext() {
		fmt.Fprintf(w, "(no relevant context in persona %s)\n", result.Persona)
		return
	}
	fmt.Fprintln(w, result.Context)
	if result.StyleGuidelines != "" {
		fmt.Fprintf(w, "\nGeneration style guidelines:\n%s\n", result.StyleGuidelines)
	}
}

func warnDegraded(w io.Writer, b Backend) {
	if err := b.RerankerErr(); err != nil {
		fmt.Fprintf(w, "warning: reranking disabled: %v\n", err)
	}
}

package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const chatLongDesc string = `Interactive retrieval loop.

Each input line is sent as a query against the loaded persona and the retrieved
context is printed. Commands:
  /load <persona>   switch to another persona
  /who              show the loaded persona
  /quit             leave`

func newChatCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [persona]",
		Short: "Query a persona interactively",
		Long:  chatLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withBackend(cmd.Context(), func(b Backend) error {
				warnDegraded(cmd.ErrOrStderr(), b)
				session := b.Session(root.user)
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					if err := session.LoadPersona(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "loaded %s\n", session.Identity())
				}

				scanner := bufio.NewScanner(cmd.InOrStdin())
				for {
					fmt.Fprint(out, "> ")
					if !scanner.Scan() {
						fmt.Fprintln(out)
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					fields := strings.Fields(line)
					if len(fields) == 0 {
						continue
					}

					switch fields[0] {
					case "/quit", "/exit":
						return nil
					case "/who":
						if session.Loaded() {
							fmt.Fprintln(out, session.Identity())
						} else {
							fmt.Fprintln(out, "(no persona loaded)")
						}
					case "/load":
						if len(fields) != 2 {
							fmt.Fprintln(out, "usage: /load <persona>")
							continue
						}
						if err := session.LoadPersona(cmd.Context(), fields[1]); err != nil {
							fmt.Fprintf(out, "error: %v\n", err)
							continue
						}
						fmt.Fprintf(out, "loaded %s\n", session.Identity())
					default:
						if strings.HasPrefix(fields[0], "/") {
							fmt.Fprintf(out, "unknown command %s\n", fields[0])
							continue
						}
						result, err := session.Query(cmd.Context(), line)
						if err != nil {
							fmt.Fprintf(out, "error: %v\n", err)
							continue
						}
						printResult(out, result)
					}
				}
			})
		},
	}
}

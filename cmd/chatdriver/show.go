package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/conversation"
)

var (
	showRaw  bool
	showLast bool
)

// ShowCmd renders a saved conversation in the terminal.
func ShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <conversation>",
		Short: "Show a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, idx, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			if idx != nil {
				defer idx.Close()
			}

			c, err := store.Load(resolveConversation(store, args[0]))
			if err != nil {
				return err
			}

			var md strings.Builder
			if showLast {
				reply, ok := c.LastAssistant()
				if !ok {
					return fmt.Errorf("conversation %s has no assistant reply yet", c.ID)
				}
				md.WriteString(reply.Content + "\n")
			} else if err := (&conversation.MarkdownExporter{}).Export(c, &md); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if showRaw {
				fmt.Fprint(w, md.String())
				return nil
			}

			out, err := renderMarkdown(md.String())
			if err != nil {
				return err
			}
			fmt.Fprint(w, out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showRaw, "raw", false, "print markdown without terminal styling")
	cmd.Flags().BoolVar(&showLast, "last", false, "print only the most recent assistant reply")
	return cmd
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	return r.Render(md)
}

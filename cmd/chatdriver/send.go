package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/session"
)

var (
	sendConversation string
	sendTitle        string
	sendNew          bool
	sendFile         string
)

// SendCmd delivers one prompt and prints the reply.
func SendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [prompt]",
		Short: "Send one prompt and print the reply",
		Long: `Send one prompt and print the reply. With no arguments the prompt is read from stdin.

Use --conversation to continue a saved conversation by id or path, and --file to send a
text file's contents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" && sendFile == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = strings.TrimSpace(string(data))
			}
			if prompt == "" && sendFile == "" {
				return errors.New("empty prompt")
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			switch {
			case sendConversation != "":
				if err := a.manager.Load(ctx, resolveConversation(a.store, sendConversation)); err != nil {
					return err
				}
			case sendNew:
				if _, err := a.manager.NewChat(ctx, sendTitle); err != nil {
					return err
				}
			default:
				a.manager.StartConversation(sendTitle)
			}

			var reply string
			if sendFile != "" {
				reply, err = a.manager.SendFile(ctx, sendFile, prompt)
			} else {
				reply, err = a.manager.Send(ctx, prompt)
			}
			var perr *session.PersistError
			if errors.As(err, &perr) && reply != "" {
				a.logger.Warn("reply not saved", "path", perr.Path, "error", perr.Err)
				err = nil
			}
			if err != nil {
				return err
			}

			fmt.Println(reply)
			if c := a.manager.Conversation(); c != nil {
				a.logger.Info("conversation saved", "id", c.ID, "path", a.store.PathFor(c.ID))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sendConversation, "conversation", "c", "", "continue a saved conversation (id or path)")
	cmd.Flags().StringVarP(&sendTitle, "title", "t", "", "title for a new conversation")
	cmd.Flags().BoolVar(&sendNew, "new", false, "open the site's start page before sending")
	cmd.Flags().StringVarP(&sendFile, "file", "f", "", "send the text of this file, with the prompt as an optional message")

	return cmd
}

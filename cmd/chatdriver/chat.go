package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/conversation"
	"github.com/neboloop/chatdriver/internal/daemon"
	"github.com/neboloop/chatdriver/internal/session"
)

var chatConversation string

// ChatCmd runs an interactive session.
func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if chatConversation != "" {
				if err := a.manager.Load(ctx, resolveConversation(a.store, chatConversation)); err != nil {
					return err
				}
				printHistory(a)
			}

			ka := daemon.NewKeepalive(a.manager, daemon.KeepaliveConfig{
				Interval: a.cfg.Session.KeepaliveInterval,
				Logger:   a.logger,
			})
			ka.Start(ctx)
			defer ka.Stop()

			runInteractive(ctx, a)
			return nil
		},
	}

	cmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "resume a saved conversation (id or path)")
	return cmd
}

// readLines feeds stdin to a channel so the loop can also watch for Ctrl+C.
func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func runInteractive(ctx context.Context, a *app) {
	fmt.Println(headerStyle.Render("chatdriver") + dateStyle.Render(a.cfg.Site))
	fmt.Println("Type your message and press Enter. Use /help for commands, Ctrl+C to exit.")
	fmt.Println()

	lines := readLines()
	for {
		fmt.Print(userStyle.Render("> "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, a, line); quit {
				return
			}
			continue
		}

		reply, err := a.manager.Send(ctx, line)
		var perr *session.PersistError
		switch {
		case errors.As(err, &perr) && reply != "":
			fmt.Fprintln(os.Stderr, badStyle.Render("not saved: ")+perr.Err.Error())
		case err != nil:
			fmt.Fprintln(os.Stderr, badStyle.Render("Error: ")+err.Error())
			continue
		}
		fmt.Println(assistantStyle.Render(reply))
		fmt.Println()
	}
}

// handleCommand runs one slash command and reports whether the loop should end.
func handleCommand(ctx context.Context, a *app, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch name {
	case "/help":
		fmt.Println(`Commands:
  /help          - Show this help
  /new [title]   - Start a new conversation on the site's start page
  /open <url>    - Continue an existing remote conversation
  /load <id>     - Resume a saved conversation
  /file <path> [message] - Send a text file's contents
  /history       - Show the current conversation
  /list          - List saved conversations
  /export [path] - Save the current conversation
  /quit          - Exit`)

	case "/new":
		var id string
		if id, err = a.manager.NewChat(ctx, arg); err == nil {
			fmt.Println("Started " + idStyle.Render(id))
		}

	case "/open":
		if arg == "" {
			err = errors.New("usage: /open <url>")
			break
		}
		var id string
		if id, err = a.manager.OpenURL(ctx, arg); err == nil {
			fmt.Println("Tracking " + arg + " as " + idStyle.Render(id))
		}

	case "/load":
		if arg == "" {
			err = errors.New("usage: /load <id>")
			break
		}
		if err = a.manager.Load(ctx, resolveConversation(a.store, arg)); err == nil {
			printHistory(a)
		}

	case "/file":
		path, msg, _ := strings.Cut(arg, " ")
		if path == "" {
			err = errors.New("usage: /file <path> [message]")
			break
		}
		var reply string
		reply, err = a.manager.SendFile(ctx, path, strings.TrimSpace(msg))
		var perr *session.PersistError
		if errors.As(err, &perr) && reply != "" {
			fmt.Fprintln(os.Stderr, badStyle.Render("not saved: ")+perr.Err.Error())
			err = nil
		}
		if err == nil {
			fmt.Println(assistantStyle.Render(reply))
			fmt.Println()
		}

	case "/history":
		printHistory(a)

	case "/list":
		var entries []string
		list, lerr := a.manager.ListSaved()
		if err = lerr; err == nil {
			for _, e := range list {
				entries = append(entries, fmt.Sprintf("  %s %s", idStyle.Render(e.ID), dateStyle.Render(e.ModTime.Format("2006-01-02 15:04"))))
			}
			if len(entries) == 0 {
				fmt.Println("No saved conversations.")
			} else {
				fmt.Println(strings.Join(entries, "\n"))
			}
		}

	case "/export":
		var path string
		if path, err = a.manager.Export(ctx, arg); err == nil {
			fmt.Println("Saved " + path)
		}

	case "/quit", "/exit":
		return true

	default:
		err = fmt.Errorf("unknown command %s (try /help)", name)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render("Error: ")+err.Error())
	}
	return false
}

func printHistory(a *app) {
	c := a.manager.Conversation()
	if c == nil {
		fmt.Println("No conversation yet.")
		return
	}
	fmt.Println(titleStyle.Render(c.Title) + " " + idStyle.Render(c.ID))
	for _, m := range c.Messages {
		style := userStyle
		if m.Role != conversation.RoleUser {
			style = assistantStyle
		}
		fmt.Println(style.Render(strings.ToUpper(m.Role)+":") + " " + m.Content)
	}
	fmt.Println()
}

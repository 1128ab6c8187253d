package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/browser"
)

// DaemonCmd manages the background browser directly.
func DaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background browser",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the browser if it is not already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			d, err := daemonFromFlags()
			if err != nil {
				return err
			}
			if err := d.Ensure(ctx); err != nil {
				return err
			}
			printStatus(d.Status(ctx))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the browser started by chatdriver and forget it",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemonFromFlags()
			if err != nil {
				return err
			}
			if err := d.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("stopped"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the browser is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemonFromFlags()
			if err != nil {
				return err
			}
			printStatus(d.Status(cmd.Context()))
			return nil
		},
	})

	return cmd
}

func daemonFromFlags() (*browser.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newDaemon(cfg, newLogger(cfg)), nil
}

func printStatus(s browser.Status) {
	fmt.Println(headerStyle.Render("Browser daemon"))
	fmt.Println(labelStyle.Render("endpoint") + s.Endpoint)
	fmt.Println(labelStyle.Render("reachable") + yesNo(s.Reachable))
	if s.WebSocketURL != "" {
		fmt.Println(labelStyle.Render("websocket") + idStyle.Render(s.WebSocketURL))
	}
	fmt.Println(labelStyle.Render("recorded") + yesNo(s.Descriptor))
	if s.PID != 0 {
		fmt.Println(labelStyle.Render("pid") + fmt.Sprintf("%d (alive: %s)", s.PID, yesNo(s.PIDAlive)))
	}
}

// withSignals returns a context cancelled on Ctrl+C or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

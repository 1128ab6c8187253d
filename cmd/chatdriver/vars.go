package cli

import (
	"github.com/spf13/cobra"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile   string
	verbose   bool
	hardClose bool
	siteArg   string
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatdriver",
		Short: "chatdriver - drive web chat assistants through a shared browser",
		Long: `chatdriver talks to ChatGPT or Perplexity through a Chrome instance that it keeps
running in the background. Conversations are saved locally and can be resumed later.

Run 'chatdriver chat' for an interactive session or 'chatdriver send <prompt>' for one turn.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: platform data directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&hardClose, "hard", false, "shut the browser down on exit instead of leaving it running")
	rootCmd.PersistentFlags().StringVar(&siteArg, "site", "", "site profile to use (chatgpt, perplexity)")

	// Add commands
	rootCmd.AddCommand(DaemonCmd())
	rootCmd.AddCommand(SendCmd())
	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(ListCmd())
	rootCmd.AddCommand(ShowCmd())
	rootCmd.AddCommand(ExportCmd())
	rootCmd.AddCommand(ConfigCmd())

	return rootCmd
}

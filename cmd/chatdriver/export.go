package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/conversation"
)

var (
	exportFormat string
	exportOutput string
)

// ExportCmd writes a saved conversation in another format.
func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <conversation>",
		Short: "Export a saved conversation as json, yaml or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := conversation.NewExporter(exportFormat)
			if err != nil {
				return err
			}

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

			if exportOutput == "" || exportOutput == "-" {
				return exporter.Export(c, os.Stdout)
			}

			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := exporter.Export(c, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %s to %s\n", c.ID, exportOutput)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json, yaml, md")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	return cmd
}

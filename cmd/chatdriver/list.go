package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/chatdriver/internal/config"
	"github.com/neboloop/chatdriver/internal/conversation"
)

var (
	listSearch string
	listLimit  int
)

// ListCmd lists saved conversations.
func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Long:  `List saved conversations, most recent first. --search matches titles and message text.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, idx, err := openOffline(ctx)
			if err != nil {
				return err
			}
			if idx != nil {
				defer idx.Close()
			}

			var rows []conversation.Summary
			if idx != nil {
				rows, err = listIndexed(ctx, idx, newLogger(cfg))
			} else {
				rows, err = listFiles(store)
			}
			if err != nil {
				return err
			}

			if len(rows) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}

			fmt.Println(headerStyle.Render(fmt.Sprintf("%d conversations", len(rows))))
			for _, s := range rows {
				fmt.Printf("%s  %s  %s  %s\n",
					idStyle.Render(s.ID),
					titleStyle.Render(s.Title),
					countStyle.Render(fmt.Sprintf("%d msgs", s.MessageCount)),
					dateStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listSearch, "search", "s", "", "only conversations whose title or messages contain this text")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of conversations")
	return cmd
}

// openOffline loads config and the conversation store without touching the browser.
func openOffline(ctx context.Context) (*config.Config, *conversation.Store, *conversation.Index, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	store, idx := openStore(ctx, cfg, newLogger(cfg))
	return cfg, store, idx, nil
}

// listIndexed queries the index and drops rows whose file has gone.
func listIndexed(ctx context.Context, idx *conversation.Index, logger *slog.Logger) ([]conversation.Summary, error) {
	var rows []conversation.Summary
	var err error
	if listSearch != "" {
		rows, err = idx.Search(ctx, listSearch, listLimit)
	} else {
		rows, err = idx.Recent(ctx, listLimit)
	}
	if err != nil {
		return nil, err
	}

	kept := rows[:0]
	for _, s := range rows {
		if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
			if err := idx.Remove(s.ID); err != nil {
				logger.Warn("failed to drop missing conversation from index", "id", s.ID, "path", s.Path, "error", err)
			}
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

// listFiles is the fallback when the index is disabled: read every file.
func listFiles(store *conversation.Store) ([]conversation.Summary, error) {
	entries, err := store.List()
	if err != nil {
		return nil, err
	}

	var rows []conversation.Summary
	for _, e := range entries {
		if len(rows) >= listLimit {
			break
		}
		c, err := store.Load(e.Path)
		if err != nil {
			continue
		}
		if listSearch != "" && !matches(c, listSearch) {
			continue
		}
		rows = append(rows, conversation.Summary{
			ID:           c.ID,
			Title:        c.Title,
			Path:         e.Path,
			RemoteURL:    c.RemoteURL,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: len(c.Messages),
		})
	}
	return rows, nil
}

func matches(c *conversation.Conversation, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	return false
}

package conversation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/neboloop/chatdriver/internal/db"
)

// Summary is one row of the conversation index.
type Summary struct {
	ID           string
	Title        string
	Path         string
	RemoteURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// Index is a SQLite mirror of saved conversations used for listing and search.
// The JSON files stay the source of truth.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	conn, err := db.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Index{db: conn}, nil
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert implements Indexer.
func (i *Index) Upsert(c *Conversation, path string) error {
	var body strings.Builder
	for _, m := range c.Messages {
		body.WriteString(m.Content)
		body.WriteByte('\n')
	}

	_, err := i.db.Exec(`
		INSERT INTO conversations (id, title, path, remote_url, created_at, updated_at, message_count, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			remote_url = excluded.remote_url,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			body = excluded.body`,
		c.ID, c.Title, path, c.RemoteURL,
		c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano),
		len(c.Messages), body.String(),
	)
	return err
}

// Recent returns up to limit conversations by last update.
func (i *Index) Recent(ctx context.Context, limit int) ([]Summary, error) {
	return i.query(ctx, `
		SELECT id, title, path, remote_url, created_at, updated_at, message_count
		FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
}

// Search matches query against titles and message text.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Summary, error) {
	pattern := "%" + escapeLike(query) + "%"
	return i.query(ctx, `
		SELECT id, title, path, remote_url, created_at, updated_at, message_count
		FROM conversations
		WHERE title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC LIMIT ?`, pattern, pattern, limit)
}

// Remove deletes a conversation from the index.
func (i *Index) Remove(id string) error {
	_, err := i.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (i *Index) query(ctx context.Context, q string, args ...any) ([]Summary, error) {
	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var created, updated string
		if err := rows.Scan(&s.ID, &s.Title, &s.Path, &s.RemoteURL, &created, &updated, &s.MessageCount); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, s)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

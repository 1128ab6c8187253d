package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exporter renders a conversation in some format
type Exporter interface {
	Export(c *Conversation, w io.Writer) error
	Extension() string
}

// NewExporter creates an exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}

// JSONExporter writes the same document the store saves
type JSONExporter struct{}

func (e *JSONExporter) Export(c *Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (e *JSONExporter) Extension() string { return "json" }

// YAMLExporter exports conversations in YAML format
type YAMLExporter struct{}

func (e *YAMLExporter) Export(c *Conversation, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(c)
}

func (e *YAMLExporter) Extension() string { return "yaml" }

// MarkdownExporter writes a readable transcript
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(c *Conversation, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "*Created: %s*\n\n", c.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if c.RemoteURL != "" {
		fmt.Fprintf(&b, "*Thread: %s*\n\n", c.RemoteURL)
	}
	for _, m := range c.Messages {
		fmt.Fprintf(&b, "**%s:** %s\n\n", strings.ToUpper(m.Role), m.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (e *MarkdownExporter) Extension() string { return "md" }

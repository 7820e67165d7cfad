package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/specflow/engine"
)

// WriteAgent writes extracted items to the output folder: one JSON summary
// plus one markdown file per item under items/. Written paths land in
// written_files.
type WriteAgent struct {
	logger *zap.Logger
}

// NewWriteAgent creates the write agent.
func NewWriteAgent(logger *zap.Logger) *WriteAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteAgent{logger: logger.With(zap.String("agent", WriteAgentName))}
}

func (a *WriteAgent) Name() string { return WriteAgentName }

func (a *WriteAgent) Execute(ctx context.Context, state *engine.State) error {
	folder, _ := state.GetString(KeyOutputFolder)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	items, _ := state.GetSlice(KeyExtractedItems)
	written := make([]any, 0, len(items)+1)

	summaryPath := filepath.Join(folder, "extraction_results.json")
	summary, err := json.MarshalIndent(map[string]any{
		"run_id":      state.RunID,
		"total_items": len(items),
		"items":       items,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, summary, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	written = append(written, summaryPath)
	state.AddTrace(engine.TraceEntry{
		"type":  "file_write",
		"agent": a.Name(),
		"file":  filepath.Base(summaryPath),
		"size":  len(summary),
	})

	itemsDir := filepath.Join(folder, "items")
	if err := os.MkdirAll(itemsDir, 0o755); err != nil {
		return fmt.Errorf("create items folder: %w", err)
	}

	for _, raw := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, _ := raw.(map[string]any)
		title, _ := item["title"].(string)
		if title == "" {
			title = "untitled"
		}
		path := filepath.Join(itemsDir, safeFilename(title)+".md")
		content := renderMarkdown(item)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		written = append(written, path)
		state.AddTrace(engine.TraceEntry{
			"type":  "file_write",
			"agent": a.Name(),
			"file":  filepath.Base(path),
			"size":  len(content),
		})
	}

	a.logger.Debug("write finished",
		zap.String("folder", folder),
		zap.Int("files", len(written)),
	)
	state.Data[KeyWrittenFiles] = written
	return nil
}

// safeFilename converts a title into a filesystem-safe name, keeping only
// alphanumerics, underscores, and hyphens, capped at 80 characters.
func safeFilename(title string) string {
	safe := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "_")
	var b strings.Builder
	for _, r := range safe {
		if r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 80 {
		out = out[:80]
	}
	if out == "" {
		return "untitled"
	}
	return out
}

// renderMarkdown renders one extracted item as a small markdown document.
func renderMarkdown(item map[string]any) string {
	title, _ := item["title"].(string)
	if title == "" {
		title = "untitled"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if itemType, _ := item["item_type"].(string); itemType != "" {
		fmt.Fprintf(&b, "**Type:** %s\n\n", itemType)
	}
	if desc, _ := item["description"].(string); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}
	if tags, ok := item["tags"].([]any); ok && len(tags) > 0 {
		parts := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				parts = append(parts, s)
			}
		}
		fmt.Fprintf(&b, "**Tags:** %s\n\n", strings.Join(parts, ", "))
	}
	if conf, ok := item["confidence"].(float64); ok {
		fmt.Fprintf(&b, "**Confidence:** %.2f\n\n", conf)
	}
	if src, _ := item["source_file"].(string); src != "" {
		fmt.Fprintf(&b, "---\n*Source: %s*\n", src)
	}
	return b.String()
}

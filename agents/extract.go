package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/specflow/engine"
	"github.com/BaSui01/specflow/llm"
)

// ExtractAgent asks the LLM to pull structured items out of every loaded
// file and merges the results into extracted_items. Each item is tagged
// with its source_file.
type ExtractAgent struct {
	client llm.ChatClient
	logger *zap.Logger
}

// NewExtractAgent creates the extract agent.
func NewExtractAgent(client llm.ChatClient, logger *zap.Logger) *ExtractAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractAgent{client: client, logger: logger.With(zap.String("agent", ExtractAgentName))}
}

func (a *ExtractAgent) Name() string { return ExtractAgentName }

func (a *ExtractAgent) Execute(ctx context.Context, state *engine.State) error {
	model, _ := state.GetConfigString(ConfigModel)
	files, _ := state.GetSlice(KeyLoadedFiles)

	allItems := make([]any, 0)
	for _, raw := range files {
		file, _ := raw.(map[string]any)
		filename, _ := file["filename"].(string)
		content, _ := file["content"].(string)

		userPrompt := fmt.Sprintf(userPromptFormat, filename, content)
		start := time.Now()
		response, tokens, err := a.client.ChatCompletion(ctx, []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		})
		if err != nil {
			return fmt.Errorf("extract from %s: %w", filename, err)
		}
		if response == "" {
			response = "[]"
		}

		state.AddTrace(engine.TraceEntry{
			"type":             "llm_call",
			"agent":            a.Name(),
			"model":            model,
			"file":             filename,
			"tokens":           tokens,
			"duration_ms":      time.Since(start).Milliseconds(),
			"prompt_preview":   preview(userPrompt, 200),
			"response_preview": preview(response, 500),
		})

		allItems = append(allItems, parseItems(response, filename)...)
	}

	a.logger.Debug("extraction finished",
		zap.Int("files", len(files)),
		zap.Int("items", len(allItems)),
	)
	state.Data[KeyExtractedItems] = allItems
	return nil
}

// parseItems decodes the LLM response into item maps, tolerating markdown
// code fences and a single bare object instead of an array. Unparseable
// responses yield no items; the post-spec turns that into a retryable
// failure.
func parseItems(response, sourceFile string) []any {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		var kept []string
		for _, line := range strings.Split(cleaned, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = strings.Join(kept, "\n")
	}

	var items []any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var single map[string]any
		if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
			return nil
		}
		items = []any{single}
	}

	for _, raw := range items {
		if item, ok := raw.(map[string]any); ok {
			item["source_file"] = sourceFile
		}
	}
	return items
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

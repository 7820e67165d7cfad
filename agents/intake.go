package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/specflow/engine"
)

// supportedExtensions lists the file types the intake step loads.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// IntakeAgent loads text files from the input folder into loaded_files.
// Each entry carries filename, content, and size.
type IntakeAgent struct {
	logger *zap.Logger
}

// NewIntakeAgent creates the intake agent.
func NewIntakeAgent(logger *zap.Logger) *IntakeAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeAgent{logger: logger.With(zap.String("agent", IntakeAgentName))}
}

func (a *IntakeAgent) Name() string { return IntakeAgentName }

func (a *IntakeAgent) Execute(ctx context.Context, state *engine.State) error {
	folder, _ := state.GetString(KeyInputFolder)
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("input folder does not exist: %s", folder)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("read input folder: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	loaded := make([]any, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		content, err := os.ReadFile(filepath.Join(folder, entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		loaded = append(loaded, map[string]any{
			"filename": entry.Name(),
			"content":  string(content),
			"size":     len(content),
		})
		state.AddTrace(engine.TraceEntry{
			"type":  "file_read",
			"agent": a.Name(),
			"file":  entry.Name(),
			"size":  len(content),
		})
	}

	a.logger.Debug("intake finished",
		zap.String("folder", folder),
		zap.Int("files", len(loaded)),
	)
	state.Data[KeyLoadedFiles] = loaded
	return nil
}

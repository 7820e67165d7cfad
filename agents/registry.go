package agents

import (
	"go.uber.org/zap"

	"github.com/BaSui01/specflow/engine"
	"github.com/BaSui01/specflow/llm"
)

// NewRegistry builds the agent registry for the text-extraction pipeline.
// The registry is an explicit value handed to the orchestrator, so tests
// can swap agents freely.
func NewRegistry(client llm.ChatClient, logger *zap.Logger) (*engine.AgentRegistry, error) {
	reg := engine.NewAgentRegistry()
	for name, agent := range map[string]engine.Agent{
		IntakeAgentName:  NewIntakeAgent(logger),
		ExtractAgentName: NewExtractAgent(client, logger),
		WriteAgentName:   NewWriteAgent(logger),
	} {
		if err := reg.Register(name, agent); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

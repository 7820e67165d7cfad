// Package manifest loads declarative workflow definitions into the
// engine's graph model. Manifests are YAML (JSON is a subset of YAML, so
// JSON manifests load too); the graph structure is data, not code, so
// swapping manifests swaps workflows without recompiling anything.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/specflow/engine"
)

// Retry defaults applied when a step omits its retry block.
const (
	defaultMaxAttempts  = 2
	defaultDelaySeconds = 1.0
)

var compiledSchema = jsonschema.MustCompileString("manifest.schema.json", manifestSchema)

// stepDoc mirrors one steps entry in the manifest.
type stepDoc struct {
	Agent string `yaml:"agent" json:"agent"`
	Specs struct {
		Pre       []string `yaml:"pre" json:"pre"`
		Post      []string `yaml:"post" json:"post"`
		Invariant []string `yaml:"invariant" json:"invariant"`
	} `yaml:"specs" json:"specs"`
	Retry *struct {
		MaxAttempts  *int     `yaml:"max_attempts" json:"max_attempts"`
		DelaySeconds *float64 `yaml:"delay_seconds" json:"delay_seconds"`
	} `yaml:"retry" json:"retry"`
}

// edgeDoc mirrors one edges entry in the manifest.
type edgeDoc struct {
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to" json:"to"`
	Condition string `yaml:"condition" json:"condition"`
}

// doc mirrors the manifest document.
type doc struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Version     string             `yaml:"version" json:"version"`
	EntryStep   string             `yaml:"entry_step" json:"entry_step"`
	Steps       map[string]stepDoc `yaml:"steps" json:"steps"`
	Edges       []edgeDoc          `yaml:"edges" json:"edges"`
	Defaults    map[string]any     `yaml:"defaults" json:"defaults"`
	Budgets     map[string]int     `yaml:"budgets" json:"budgets"`
}

// LoadFile reads and parses a manifest file into a validated graph.
func LoadFile(path string, logger *zap.Logger) (*engine.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	g, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return g, nil
}

// Parse parses manifest bytes into a validated graph. The document is
// checked against the manifest schema first, so structural mistakes
// surface with schema paths instead of nil-map panics later.
func Parse(data []byte, logger *zap.Logger) (*engine.Graph, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := compiledSchema.Validate(jsonify(raw)); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return build(&d, logger)
}

// build maps the document onto the engine's graph model. Step order in a
// YAML mapping is not meaningful, so steps go in as a slice built from
// the map; edges keep their declared order because the router's
// first-match rule depends on it.
func build(d *doc, logger *zap.Logger) (*engine.Graph, error) {
	spec := engine.GraphSpec{
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Entry:       d.EntryStep,
		Defaults:    d.Defaults,
		Budgets:     d.Budgets,
	}

	for name, sd := range d.Steps {
		attempts := defaultMaxAttempts
		delay := defaultDelaySeconds
		if sd.Retry != nil {
			if sd.Retry.MaxAttempts != nil {
				attempts = *sd.Retry.MaxAttempts
			}
			if sd.Retry.DelaySeconds != nil {
				delay = *sd.Retry.DelaySeconds
			}
		}
		spec.Steps = append(spec.Steps, engine.StepDefinition{
			Name:           name,
			AgentName:      sd.Agent,
			PreSpecs:       sd.Specs.Pre,
			PostSpecs:      sd.Specs.Post,
			InvariantSpecs: sd.Specs.Invariant,
			Retry: engine.RetryPolicy{
				MaxAttempts: attempts,
				Delay:       time.Duration(delay * float64(time.Second)),
			},
		})
	}

	for _, e := range d.Edges {
		cond := engine.EdgeCondition(e.Condition)
		if e.Condition == "" {
			cond = engine.OnPass
		}
		spec.Edges = append(spec.Edges, engine.Edge{From: e.From, To: e.To, Condition: cond})
	}

	return engine.NewGraph(spec, logger)
}

// jsonify converts a yaml.Unmarshal value into the shape the schema
// validator expects: yaml decodes mappings as map[string]any already, but
// numbers arrive as int rather than json.Number, so a JSON round trip
// normalizes the whole tree.
func jsonify(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}

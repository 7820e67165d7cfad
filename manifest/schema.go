package manifest

// manifestSchema is the JSON Schema every manifest must satisfy before
// the graph is built. Structural checks live here; semantic checks (entry
// step exists, agents bound, retry bounds) live in engine.NewGraph.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "entry_step", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "entry_step": {"type": "string", "minLength": 1},
    "steps": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["agent"],
        "properties": {
          "agent": {"type": "string", "minLength": 1},
          "specs": {
            "type": "object",
            "properties": {
              "pre": {"type": "array", "items": {"type": "string"}},
              "post": {"type": "array", "items": {"type": "string"}},
              "invariant": {"type": "array", "items": {"type": "string"}}
            },
            "additionalProperties": false
          },
          "retry": {
            "type": "object",
            "properties": {
              "max_attempts": {"type": "integer", "minimum": 1},
              "delay_seconds": {"type": "number", "minimum": 0}
            },
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "condition": {"enum": ["on_pass", "on_fail", "always"]}
        },
        "additionalProperties": false
      }
    },
    "defaults": {"type": "object"},
    "budgets": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    }
  },
  "additionalProperties": false
}`

package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "world": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "seed": {"type": "integer"},
        "generator": {"type": "string", "enum": ["noise", "flat", "NOISE", "FLAT"]},
        "flat_height": {"type": "integer", "minimum": 1}
      }
    },
    "streaming": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "view_distance": {"type": "integer", "minimum": 0},
        "max_loads_per_frame": {"type": "integer", "minimum": 0},
        "max_unloads_per_frame": {"type": "integer", "minimum": 0},
        "loads_per_second": {"type": "number", "minimum": 0},
        "load_burst": {"type": "integer", "minimum": 0}
      }
    },
    "workers": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "count": {"type": "integer", "minimum": 0},
        "max_count": {"type": "integer", "minimum": 1},
        "max_consecutive_failures": {"type": "integer", "minimum": 1}
      }
    },
    "storage": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "path": {"type": "string"}
      }
    },
    "observe": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": {"type": "string"}
      }
    }
  }
}`

var documentSchema = jsonschema.MustCompileString("chunkstream.config.schema.json", schemaJSON)

// validateDocument checks a raw YAML document against the config schema.
// Unknown keys and mistyped values are rejected before decoding.
func validateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// The validator expects values shaped like encoding/json output.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("config document: %w", err)
	}
	if err := documentSchema.Validate(v); err != nil {
		return fmt.Errorf("config document: %w", err)
	}
	return nil
}

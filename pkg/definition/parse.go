package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://workflow.local/schemas/definition.json"

// definitionSchema is the structural schema of a definition document.
// Kind-specific attributes are checked by Lint.
const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://workflow.local/schemas/definition.json",
  "$ref": "#/$defs/workflow",
  "$defs": {
    "workflow": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "schedule": { "type": "string", "minLength": 1 },
        "lang": { "type": "string", "enum": ["expr", "cel"] },
        "middleware": {
          "type": "array",
          "items": { "type": "string", "enum": ["profile", "log", "metrics"] }
        },
        "prepare": { "$ref": "#/$defs/steps" },
        "validate": { "$ref": "#/$defs/steps" },
        "before": { "$ref": "#/$defs/steps" },
        "process": { "$ref": "#/$defs/steps" },
        "on_error": { "$ref": "#/$defs/steps" },
        "on_success": { "$ref": "#/$defs/steps" },
        "after": { "$ref": "#/$defs/steps" }
      },
      "additionalProperties": false
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "step": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "hard": { "type": "boolean" },
        "when": { "type": "string", "minLength": 1 },
        "requires": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["key"],
            "properties": {
              "key": { "type": "string", "minLength": 1 },
              "kind": { "type": "string", "enum": ["string", "bool", "int", "float", "slice", "map", "scalar"] },
              "nullable": { "type": "boolean" }
            },
            "additionalProperties": false
          }
        },
        "with": { "type": "object" },
        "while": { "type": "string", "minLength": 1 },
        "over": { "type": "string", "minLength": 1 },
        "as": { "type": "string", "minLength": 1 },
        "max_iterations": { "type": "integer", "minimum": 1 },
        "continue_on_error": { "type": "boolean" },
        "steps": { "$ref": "#/$defs/steps" },
        "path": { "type": "string", "minLength": 1 },
        "workflow": { "$ref": "#/$defs/workflow" },
        "context": { "type": "object" }
      },
      "additionalProperties": false
    }
  }
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchema))
	if err != nil {
		panic(fmt.Sprintf("unmarshal definition schema: %v", err))
	}
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("add definition schema: %v", err))
	}
	return c.MustCompile(schemaURL)
}()

// SchemaError lists the structural violations of a document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid definition: " + e.Violations[0]
	}
	return fmt.Sprintf("invalid definition: %d errors:\n  %s", len(e.Violations), strings.Join(e.Violations, "\n  "))
}

// Parse decodes a YAML document and checks its structure.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if raw == nil {
		return nil, errors.New("parse definition: empty document")
	}
	if err := checkStructure(raw); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

// Load reads and parses the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	def.Path = path
	return def, nil
}

// checkStructure validates the decoded YAML tree against the schema. The
// tree goes through JSON so numbers reach the validator as json.Number.
func checkStructure(raw any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return &SchemaError{Violations: Violations(err)}
	}
	return nil
}

// Violations flattens a jsonschema validation error into leaf messages
// prefixed with their instance location. Other errors yield their text.
func Violations(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	return appendViolations(nil, message.NewPrinter(language.English), verr)
}

func appendViolations(out []string, p *message.Printer, verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return append(out, fmt.Sprintf("%s: %s", loc, verr.ErrorKind.LocalizedString(p)))
	}
	for _, cause := range verr.Causes {
		out = appendViolations(out, p, cause)
	}
	return out
}

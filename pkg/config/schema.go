package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rulesSchema is the JSON Schema every rule file and every admin rule-list
// payload is validated against before the rules reach the store. Unknown rule
// fields are allowed; they round-trip through the model untouched.
const rulesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["client", "rules"],
  "properties": {
    "client": {
      "type": "string",
      "minLength": 1
    },
    "rules": { "$ref": "#/$defs/ruleList" }
  },
  "$defs": {
    "ruleList": {
      "type": "array",
      "items": { "$ref": "#/$defs/rule" }
    },
    "rule": {
      "type": "object",
      "required": ["path"],
      "properties": {
        "id": { "type": "string" },
        "host": { "type": "string" },
        "path": { "type": "string" },
        "pathtype": { "enum": ["", "literal", "regexp"] },
        "prepath": { "type": "string" },
        "params": { "type": "string" },
        "delay": { "type": "integer", "minimum": 0 },
        "status": { "type": "integer", "minimum": 0, "maximum": 599 },
        "responsetype": { "enum": ["", "raw", "mockjs"] },
        "response": true
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	documentSchema *jsonschema.Schema
	ruleListSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("rules.json", strings.NewReader(rulesSchema)); err != nil {
		schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
		return
	}
	documentSchema, schemaErr = compiler.Compile("rules.json")
	if schemaErr != nil {
		return
	}
	ruleListSchema, schemaErr = compiler.Compile("rules.json#/$defs/ruleList")
}

// SchemaIssue is one problem found by schema validation. Path is a dotted
// location inside the validated document, empty for root-level problems.
type SchemaIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (si SchemaIssue) String() string {
	if si.Path == "" {
		return si.Message
	}
	return si.Path + ": " + si.Message
}

// ValidateRulesDocument validates a decoded rules file document, the
// {client, rules} shape, against the embedded schema. A nil return means the
// document is valid.
func ValidateRulesDocument(doc any) []SchemaIssue {
	schemaOnce.Do(compileSchemas)
	return validateAgainst(documentSchema, doc)
}

// ValidateRuleList validates a decoded JSON array of rules against the
// embedded schema. A nil return means the list is valid.
func ValidateRuleList(list any) []SchemaIssue {
	schemaOnce.Do(compileSchemas)
	return validateAgainst(ruleListSchema, list)
}

func validateAgainst(schema *jsonschema.Schema, value any) []SchemaIssue {
	if schemaErr != nil {
		return []SchemaIssue{{Message: fmt.Sprintf("schema compilation error: %v", schemaErr)}}
	}

	normalized, err := normalizeValue(value)
	if err != nil {
		return []SchemaIssue{{Message: fmt.Sprintf("value is not valid JSON: %v", err)}}
	}

	if err := schema.Validate(normalized); err != nil {
		var issues []SchemaIssue
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			collectSchemaIssues(ve, &issues)
		} else {
			issues = append(issues, SchemaIssue{Message: err.Error()})
		}
		return issues
	}
	return nil
}

// normalizeValue round-trips v through JSON so YAML-decoded values use the
// same concrete types the schema validator expects.
func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// collectSchemaIssues flattens the validation error tree into leaf issues.
func collectSchemaIssues(err *jsonschema.ValidationError, issues *[]SchemaIssue) {
	if len(err.Causes) == 0 {
		*issues = append(*issues, SchemaIssue{
			Path:    pointerToDotted(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaIssues(cause, issues)
	}
}

// pointerToDotted converts a JSON Pointer path to dot notation.
func pointerToDotted(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	path = strings.TrimPrefix(path, "/")
	return strings.ReplaceAll(path, "/", ".")
}

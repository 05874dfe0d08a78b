// Package policyconfig reads merchant policy documents. Documents may be JSON or
// YAML and are checked against an embedded JSON Schema before they are decoded.
package policyconfig

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/returns-service/internal/domain"
)

//go:embed policy.schema.json
var schemaDocument []byte

const schemaURL = "returns://schemas/policy.json"

// Decoder implements application.PolicyDecoder
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the embedded policy schema
func NewDecoder() (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDocument))
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add policy schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy schema: %w", err)
	}
	return &Decoder{schema: schema}, nil
}

// Decode parses a JSON or YAML document. Parse and schema problems are returned
// as findings; the config is only populated when the document matches the schema.
func (d *Decoder) Decode(data []byte) (domain.PolicyConfig, domain.ValidationResult) {
	var cfg domain.PolicyConfig

	normalized, instance, err := normalize(data)
	if err != nil {
		return cfg, invalid(domain.ValidationIssue{Message: err.Error()})
	}

	if err := d.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return cfg, invalid(domain.ValidationIssue{Message: err.Error()})
		}
		return cfg, invalid(schemaIssues(verr)...)
	}

	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return cfg, invalid(domain.ValidationIssue{Message: fmt.Sprintf("failed to decode policy: %v", err)})
	}
	return cfg, domain.ValidationResult{Valid: true}
}

// normalize turns YAML or JSON into canonical JSON plus the generic value the
// schema validator expects. YAML is a superset of JSON so one parser covers both.
func normalize(data []byte) ([]byte, any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errors.New("policy document is empty")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("policy document is not valid JSON or YAML: %w", err)
	}
	generic, err := nodeValue(&root)
	if err != nil {
		return nil, nil, fmt.Errorf("policy document is not valid JSON or YAML: %w", err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, nil, errors.New("policy document must be an object")
	}

	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize policy document: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalized))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize policy document: %w", err)
	}
	return normalized, instance, nil
}

// nodeValue converts a YAML node to the generic form encoding/json understands.
// Numbers keep their literal text so amounts such as 4.99 never pass through float64.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := nodeValue(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	switch n.ShortTag() {
	case "!!int", "!!float":
		if json.Valid([]byte(n.Value)) {
			return json.Number(n.Value), nil
		}
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// schemaIssues flattens the validation tree into its leaf findings
func schemaIssues(verr *jsonschema.ValidationError) []domain.ValidationIssue {
	if len(verr.Causes) == 0 {
		unit := verr.BasicOutput()
		message := "is invalid"
		if unit.Error != nil {
			message = unit.Error.String()
		}
		return []domain.ValidationIssue{{Field: fieldPath(unit.InstanceLocation), Message: message}}
	}

	var issues []domain.ValidationIssue
	for _, cause := range verr.Causes {
		issues = append(issues, schemaIssues(cause)...)
	}
	return issues
}

// fieldPath converts a JSON pointer such as /returnWindow/days/0 to returnWindow.days.0
func fieldPath(pointer string) string {
	return strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
}

func invalid(issues ...domain.ValidationIssue) domain.ValidationResult {
	return domain.ValidationResult{Valid: false, Errors: issues}
}

// LoadFile reads a policy document from disk and returns it only when it passes
// both the schema and the policy rules
func (d *Decoder) LoadFile(path string) (*domain.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	cfg, result := d.Decode(data)
	if result.Valid {
		result.Merge(domain.NewPolicyValidator().Validate(cfg))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return &cfg, nil
}

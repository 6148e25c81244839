// Package catalog lists the tools the Studio plugin understands and turns
// their compact argument declarations into JSON Schema.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed tools.yaml
var builtin []byte

// Tool describes one invocable tool.
type Tool struct {
	Name        string            `yaml:"name" json:"name"`
	Category    string            `yaml:"category" json:"category"`
	Description string            `yaml:"description" json:"description"`
	Args        map[string]string `yaml:"args,omitempty" json:"args,omitempty"`

	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// Catalog is an ordered, immutable set of tools.
type Catalog struct {
	tools  []Tool
	byName map[string]int
}

// Builtin parses the embedded tool list.
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Parse reads a tools document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Tools []Tool `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}

	c := &Catalog{byName: make(map[string]int, len(doc.Tools))}
	for _, t := range doc.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool catalog: tool with empty name")
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("tool catalog: duplicate tool %q", t.Name)
		}
		schema, err := expandArgs(t.Args)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("tool %q: resolve schema: %w", t.Name, err)
		}
		t.schema = schema
		t.resolved = resolved
		c.byName[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c, nil
}

// Tools returns every tool in declaration order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Lookup finds a tool by name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.tools {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	return out
}

// InputSchema returns the tool's argument schema. It is always an object
// schema, possibly with no properties.
func (t Tool) InputSchema() *jsonschema.Schema {
	if t.schema == nil {
		s, err := expandArgs(t.Args)
		if err != nil {
			return &jsonschema.Schema{Type: "object"}
		}
		return s
	}
	return t.schema
}

// Validate checks raw JSON arguments against the tool's schema.
func (t Tool) Validate(args json.RawMessage) error {
	if t.resolved == nil {
		return nil
	}
	var instance map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &instance); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if err := t.resolved.Validate(instance); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", t.Name, err)
	}
	return nil
}

// expandArgs turns {field: type} into an object schema. A "?" suffix marks
// the field optional.
func expandArgs(args map[string]string) (*jsonschema.Schema, error) {
	schema := &jsonschema.Schema{Type: "object"}
	if len(args) == 0 {
		return schema, nil
	}

	schema.Properties = make(map[string]*jsonschema.Schema, len(args))
	for name, decl := range args {
		decl = strings.TrimSpace(decl)
		optional := strings.HasSuffix(decl, "?")
		decl = strings.TrimSuffix(decl, "?")

		prop, err := expandType(decl)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		schema.Properties[name] = prop
		if !optional {
			schema.Required = append(schema.Required, name)
		}
	}
	sort.Strings(schema.Required)
	return schema, nil
}

func expandType(decl string) (*jsonschema.Schema, error) {
	if elem, ok := strings.CutPrefix(decl, "[]"); ok {
		items, err := expandType(elem)
		if err != nil {
			return nil, err
		}
		return &jsonschema.Schema{Type: "array", Items: items}, nil
	}

	switch decl {
	case "string", "number", "boolean", "integer":
		return &jsonschema.Schema{Type: decl}, nil
	case "any":
		return &jsonschema.Schema{}, nil
	case "map":
		return &jsonschema.Schema{Type: "object", AdditionalProperties: &jsonschema.Schema{}}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", decl)
	}
}

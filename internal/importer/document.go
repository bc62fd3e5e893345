// Package importer loads YAML node trees into a workspace and exports
// workspace subtrees back to YAML.
//
// A document lists nodes with their properties and children:
//
//	nodes:
//	  - name: products
//	    properties:
//	      title: Shoes
//	      sizes: [40, 41, 42]
//	      related: {type: reference, value: 5d2c...}
//	    children:
//	      - name: item
//
// Plain scalars keep their YAML type (string, long, double, boolean); other
// types use the {type, value} form with a graph type name.
package importer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/arbor/internal/graph"
)

// Document is a forest of nodes.
type Document struct {
	Nodes []Entry `yaml:"nodes"`
}

// Entry is one node of a Document.
type Entry struct {
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Children   []Entry        `yaml:"children,omitempty"`
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("importer: parse: %w", err)
	}
	return &doc, nil
}

// Encode writes doc as YAML.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("importer: encode: %w", err)
	}
	return enc.Close()
}

// properties converts the YAML property map of e, in name order.
func (e *Entry) properties() ([]*graph.Property, error) {
	names := make([]string, 0, len(e.Properties))
	for n := range e.Properties {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*graph.Property, 0, len(names))
	for _, n := range names {
		name := graph.Name(n)
		if err := name.Validate(); err != nil {
			return nil, fmt.Errorf("importer: node %q: %w", e.Name, err)
		}
		p, err := DecodeProperty(name, e.Properties[n])
		if err != nil {
			return nil, fmt.Errorf("importer: node %q: %w", e.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeProperty converts a document value (a scalar, a {type, value} map or
// a list of those) into a property.
func DecodeProperty(name graph.Name, raw any) (*graph.Property, error) {
	values, err := decodeValues(raw)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	return graph.NewProperty(name, values...), nil
}

func decodeValues(raw any) ([]any, error) {
	list, ok := raw.([]any)
	if !ok {
		v, err := decodeScalar(raw)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		v, err := decodeScalar(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeScalar(raw any) (any, error) {
	switch v := raw.(type) {
	case string, int, int64, float64, bool, time.Time:
		return v, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case map[string]any:
		tag, _ := v["type"].(string)
		value, ok := v["value"]
		if !ok {
			return nil, fmt.Errorf("typed value without a value")
		}
		if ts, ok := value.(time.Time); ok {
			value = ts.Format(time.RFC3339Nano)
		}
		return graph.ParseValue(tag, fmt.Sprint(value))
	case nil:
		return nil, fmt.Errorf("null value")
	default:
		return nil, fmt.Errorf("unsupported value %T", raw)
	}
}

// EncodeProperty renders p as a document value: single values become scalars.
func EncodeProperty(p *graph.Property) any {
	values := p.Values()
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, encodeValue(v))
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func encodeValue(v any) any {
	typed := func(tag, value string) map[string]any {
		return map[string]any{"type": tag, "value": value}
	}
	switch x := v.(type) {
	case string, int64, float64, bool:
		return x
	case time.Time:
		return typed(graph.TypeDate, x.Format(time.RFC3339Nano))
	case []byte:
		return typed(graph.TypeBinary, base64.StdEncoding.EncodeToString(x))
	case graph.Reference:
		return typed(graph.TypeReference, x.String())
	case graph.Name:
		return typed(graph.TypeName, string(x))
	case graph.Path:
		return typed(graph.TypePath, x.String())
	default:
		return fmt.Sprint(x)
	}
}

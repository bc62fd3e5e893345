package graph

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known property names.
const (
	PrimaryType  Name = "jcr:primaryType"
	Identifier   Name = "jcr:uuid"
	Data         Name = "jcr:data"
	LastModified Name = "jcr:lastModified"
	Checksum     Name = "mode:checksum"
)

// Reference points at the node whose Identifier property holds the same UUID.
type Reference uuid.UUID

// NewReference returns a reference to id.
func NewReference(id uuid.UUID) Reference { return Reference(id) }

// UUID returns the referenced identifier.
func (r Reference) UUID() uuid.UUID { return uuid.UUID(r) }

func (r Reference) String() string { return uuid.UUID(r).String() }

// Property is an immutable, named, multi-valued attribute of a node.
type Property struct {
	name   Name
	values []any
}

// NewProperty normalises values (integer kinds become int64, float32 becomes
// float64, uuid.UUID stays an identifier string) and returns the property.
func NewProperty(name Name, values ...any) *Property {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, normalize(v))
	}
	return &Property{name: name, values: out}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case uuid.UUID:
		return x.String()
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return b
	case fmt.Stringer:
		switch x.(type) {
		case Reference, Path, time.Time:
			return x
		}
		return x.String()
	default:
		return v
	}
}

// Name returns the property name.
func (p *Property) Name() Name { return p.name }

// Size returns the number of values.
func (p *Property) Size() int { return len(p.values) }

// IsEmpty reports whether the property has no values.
func (p *Property) IsEmpty() bool { return len(p.values) == 0 }

// Values returns a copy of the values.
func (p *Property) Values() []any {
	out := make([]any, len(p.values))
	copy(out, p.values)
	return out
}

// First returns the first value, or nil.
func (p *Property) First() any {
	if len(p.values) == 0 {
		return nil
	}
	return p.values[0]
}

// String returns the first value rendered as a string.
func (p *Property) String() string {
	v := p.First()
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// References returns every Reference value held by the property.
func (p *Property) References() []Reference {
	var out []Reference
	for _, v := range p.values {
		if r, ok := v.(Reference); ok {
			out = append(out, r)
		}
	}
	return out
}

// Equal compares names and values.
func (p *Property) Equal(o *Property) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.name != o.name || len(p.values) != len(o.values) {
		return false
	}
	for i := range p.values {
		if !valueEqual(p.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case Path:
		y, ok := b.(Path)
		return ok && x.Equal(y)
	default:
		return a == b
	}
}

// Value type tags used in the JSON encoding.
const (
	TypeString    = "string"
	TypeLong      = "long"
	TypeDouble    = "double"
	TypeBoolean   = "boolean"
	TypeDate      = "date"
	TypeBinary    = "binary"
	TypeReference = "reference"
	TypeName      = "name"
	TypePath      = "path"
)

type jsonValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type jsonProperty struct {
	Name   Name        `json:"name"`
	Values []jsonValue `json:"values"`
}

// MarshalJSON encodes every value with an explicit type tag.
func (p *Property) MarshalJSON() ([]byte, error) {
	out := jsonProperty{Name: p.name, Values: make([]jsonValue, 0, len(p.values))}
	for _, v := range p.values {
		jv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("graph: encode %s: %w", p.name, err)
		}
		out.Values = append(out.Values, jv)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged encoding produced by MarshalJSON.
func (p *Property) UnmarshalJSON(b []byte) error {
	var in jsonProperty
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	values := make([]any, 0, len(in.Values))
	for _, jv := range in.Values {
		v, err := decodeValue(jv)
		if err != nil {
			return fmt.Errorf("graph: decode %s: %w", in.Name, err)
		}
		values = append(values, v)
	}
	*p = Property{name: in.Name, values: values}
	return nil
}

func encodeValue(v any) (jsonValue, error) {
	var (
		tag string
		raw any
	)
	switch x := v.(type) {
	case string:
		tag, raw = TypeString, x
	case int64:
		tag, raw = TypeLong, x
	case float64:
		tag, raw = TypeDouble, x
	case bool:
		tag, raw = TypeBoolean, x
	case time.Time:
		tag, raw = TypeDate, x.Format(time.RFC3339Nano)
	case []byte:
		tag, raw = TypeBinary, base64.StdEncoding.EncodeToString(x)
	case Reference:
		tag, raw = TypeReference, x.String()
	case Name:
		tag, raw = TypeName, string(x)
	case Path:
		tag, raw = TypePath, x.String()
	default:
		return jsonValue{}, fmt.Errorf("unsupported value type %T", v)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return jsonValue{}, err
	}
	return jsonValue{Type: tag, Value: b}, nil
}

func decodeValue(jv jsonValue) (any, error) {
	switch jv.Type {
	case TypeLong:
		var n int64
		return n, unmarshalInto(jv.Value, &n)
	case TypeDouble:
		var f float64
		return f, unmarshalInto(jv.Value, &f)
	case TypeBoolean:
		var b bool
		return b, unmarshalInto(jv.Value, &b)
	}

	var s string
	if err := unmarshalInto(jv.Value, &s); err != nil {
		return nil, err
	}
	switch jv.Type {
	case TypeString, "":
		return s, nil
	case TypeDate:
		return time.Parse(time.RFC3339Nano, s)
	case TypeBinary:
		return base64.StdEncoding.DecodeString(s)
	case TypeReference:
		id, err := uuid.Parse(s)
		return Reference(id), err
	case TypeName:
		return Name(s), nil
	case TypePath:
		return ParsePath(s)
	default:
		return nil, fmt.Errorf("unknown value type %q", jv.Type)
	}
}

func unmarshalInto(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// ParseValue converts a textual value with an optional type tag ("reference",
// "long", …) into a property value. An empty tag yields a string.
func ParseValue(tag, text string) (any, error) {
	tag = strings.ToLower(tag)
	switch tag {
	case "", TypeString:
		return text, nil
	case TypeReference:
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("graph: invalid reference %q: %w", text, err)
		}
		return Reference(id), nil
	}
	raw, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}
	if tag == TypeLong || tag == TypeDouble || tag == TypeBoolean {
		raw = json.RawMessage(text)
	}
	return decodeValue(jsonValue{Type: tag, Value: raw})
}

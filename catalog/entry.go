package catalog

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/pkg/llmutils"
	"github.com/effective-security/toolplan/schema"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
)

// ParamKind classifies a tool parameter for reference resolution and
// numeric coercion.
type ParamKind string

const (
	KindString ParamKind = "string"
	KindNumber ParamKind = "number"
	KindBool   ParamKind = "boolean"
	KindEnum   ParamKind = "enum"
	KindObject ParamKind = "object"
)

// ResultShape tells the resolver how a tool's output substitutes into a
// later step's arguments: scalar tools produce a bare value, structured
// tools produce a JSON object that is injected whole.
type ResultShape string

const (
	ScalarResult     ResultShape = "scalar"
	StructuredResult ResultShape = "structured"
)

// Param describes a single tool parameter.
type Param struct {
	Kind        ParamKind `json:"kind" yaml:"kind"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	// Example is a sample argument value shown in planner format
	// instructions, from the schema example tag or declared literally.
	Example any `json:"example,omitempty" yaml:"example,omitempty"`
}

// Scalar reports whether a value of this parameter is a bare JSON scalar.
func (p Param) Scalar() bool {
	return p.Kind != KindObject
}

// Numeric reports whether the parameter takes a JSON number.
func (p Param) Numeric() bool {
	return p.Kind == KindNumber
}

// Entry describes one callable tool: its parameters, the shape of its
// result, and the provider endpoint serving it.
// Entries come from two paths: declared literally in configuration, or
// reflected from a Go argument struct with Reflect.
type Entry struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string           `json:"provider,omitempty" yaml:"provider,omitempty"`
	Parameters  map[string]Param `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Result      ResultShape      `json:"result" yaml:"result"`
	// Primary names the scalar field of a structured result used when a
	// scalar parameter references this tool's output. Empty means the
	// result has no unambiguous primary value.
	Primary  string        `json:"primary,omitempty" yaml:"primary,omitempty"`
	Defaults values.MapAny `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// order of parameters as declared, when known
	order []string
}

// WithProvider sets the provider name serving this tool.
func (e *Entry) WithProvider(provider string) *Entry {
	e.Provider = provider
	return e
}

// WithPrimary sets the primary scalar field of a structured result.
func (e *Entry) WithPrimary(field string) *Entry {
	e.Primary = field
	return e
}

// WithDefaults merges argument defaults into the entry, overriding any
// defaults harvested from schema tags.
func (e *Entry) WithDefaults(defaults values.MapAny) *Entry {
	e.Defaults = llmutils.MergeInputs(e.Defaults, defaults)
	return e
}

// Param returns the named parameter description.
func (e *Entry) Param(name string) (Param, bool) {
	p, ok := e.Parameters[name]
	return p, ok
}

// ParamNames returns parameter names in declaration order when the entry
// was reflected, sorted otherwise.
func (e *Entry) ParamNames() []string {
	if len(e.order) > 0 {
		return slices.Clone(e.order)
	}
	names := make([]string, 0, len(e.Parameters))
	for name := range e.Parameters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Scalar reports whether the tool produces a bare scalar result.
func (e *Entry) Scalar() bool {
	return e.Result == ScalarResult
}

// Validate checks the entry for declaration mistakes.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return errors.New("tool name is required")
	}
	switch e.Result {
	case ScalarResult, StructuredResult:
	case "":
		return errors.Errorf("tool %s: result shape is required", e.Name)
	default:
		return errors.Errorf("tool %s: unknown result shape: %q", e.Name, e.Result)
	}
	if e.Primary != "" && e.Result != StructuredResult {
		return errors.Errorf("tool %s: primary field requires a structured result", e.Name)
	}
	for name, p := range e.Parameters {
		switch p.Kind {
		case KindString, KindNumber, KindBool, KindObject:
		case KindEnum:
			if len(p.Enum) == 0 {
				return errors.Errorf("tool %s: parameter %s: enum kind requires values", e.Name, name)
			}
		default:
			return errors.Errorf("tool %s: parameter %s: unknown kind: %q", e.Name, name, p.Kind)
		}
	}
	for name := range e.Defaults {
		if _, ok := e.Parameters[name]; !ok {
			return errors.Errorf("tool %s: default for unknown parameter: %s", e.Name, name)
		}
	}
	return nil
}

// Reflect builds an Entry from a Go argument struct, deriving parameter
// kinds, requiredness, and defaults from the struct's schema tags.
func Reflect(name, description string, argsType reflect.Type, result ResultShape) (*Entry, error) {
	sc, err := schema.New(argsType)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to reflect tool schema: %s", name)
	}

	e := &Entry{
		Name:        name,
		Description: description,
		Parameters:  map[string]Param{},
		Result:      result,
	}

	params := sc.Parameters
	if params.Properties != nil {
		for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
			p := paramFromSchema(pair.Value)
			p.Required = slices.Contains(params.Required, pair.Key)
			e.Parameters[pair.Key] = p
			e.order = append(e.order, pair.Key)

			if pair.Value.Default != nil {
				if e.Defaults == nil {
					e.Defaults = values.MapAny{}
				}
				e.Defaults[pair.Key] = tagValue(pair.Value.Default)
			}
		}
	}

	return e, nil
}

// tagValue flattens a value harvested from a schema tag. The reflector
// carries numeric tag values as json.Number.
func tagValue(v any) any {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}

func paramFromSchema(s *jsonschema.Schema) Param {
	p := Param{
		Description: s.Description,
	}
	if len(s.Examples) > 0 {
		p.Example = tagValue(s.Examples[0])
	}
	switch s.Type {
	case "number", "integer":
		p.Kind = KindNumber
	case "boolean":
		p.Kind = KindBool
	case "string":
		if len(s.Enum) > 0 {
			p.Kind = KindEnum
			for _, v := range s.Enum {
				if sv, ok := v.(string); ok {
					p.Enum = append(p.Enum, sv)
				}
			}
		} else {
			p.Kind = KindString
		}
	default:
		// objects, arrays, and anything untyped take structured values
		p.Kind = KindObject
	}
	return p
}

// Package plan models and validates tool-call plans produced by an
// external planner.
//
// A plan is an ordered JSON array of step objects. Each object carries a
// "func" key naming a catalog tool; every other key is an argument. A
// string argument of the whole-token form "RESULT_<n>" references the
// result of the n-th step, which must be strictly prior.
package plan

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/pkg/llmutils"
)

// ErrInvalidPlan marks any plan rejected before execution.
var ErrInvalidPlan = errors.New("invalid plan")

// DefaultMaxSteps caps plan length unless configured otherwise.
const DefaultMaxSteps = 10

// FuncKey is the reserved step key naming the tool to call.
const FuncKey = "func"

const refPrefix = "RESULT_"

// refToken matches a whole-string reference to a prior step's result.
var refToken = regexp.MustCompile(`^RESULT_([1-9][0-9]*)$`)

// RefToken returns the reference token for the n-th step.
func RefToken(n int) string {
	return refPrefix + strconv.Itoa(n)
}

// ParseRef returns the 1-based step index of a whole-token reference.
func ParseRef(s string) (int, bool) {
	m := refToken.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsMalformedRef reports whether s claims to be a reference token but
// does not parse as one. Tokens embedded inside a longer string are
// ordinary literals, not malformed references.
func IsMalformedRef(s string) bool {
	if !strings.HasPrefix(s, refPrefix) {
		return false
	}
	_, ok := ParseRef(s)
	return !ok
}

// Value is a single step argument: either a JSON literal passed through
// to the tool, or a reference to a prior step's result. Exactly one of
// the two is set.
type Value struct {
	Literal json.RawMessage
	Ref     int
}

// NewLiteral wraps a raw JSON literal.
func NewLiteral(raw json.RawMessage) Value {
	return Value{Literal: raw}
}

// LiteralOf marshals a Go value into a literal.
func LiteralOf(v any) Value {
	js, _ := json.Marshal(v)
	return Value{Literal: js}
}

// NewRef references the result of the n-th step.
func NewRef(n int) Value {
	return Value{Ref: n}
}

// IsRef reports whether the value references a prior step.
func (v Value) IsRef() bool {
	return v.Ref > 0
}

// StringLiteral returns the literal as a Go string when it is a JSON
// string.
func (v Value) StringLiteral() (string, bool) {
	if v.Ref > 0 || len(v.Literal) == 0 || v.Literal[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v.Literal, &s); err != nil {
		return "", false
	}
	return s, true
}

// MarshalJSON renders the value in its wire form: the literal itself,
// or the "RESULT_<n>" token.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Ref > 0 {
		return json.Marshal(RefToken(v.Ref))
	}
	if len(v.Literal) == 0 {
		return []byte("null"), nil
	}
	return v.Literal, nil
}

// Step is one tool call of a plan.
type Step struct {
	// Index is the 1-based position, the identifier later steps reference.
	Index int
	Func  string
	Args  map[string]Value
}

// MarshalJSON renders the step in its wire form.
func (s Step) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(s.Args)+1)
	fn, err := json.Marshal(s.Func)
	if err != nil {
		return nil, err
	}
	obj[FuncKey] = fn
	for name, v := range s.Args {
		js, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		obj[name] = js
	}
	return json.Marshal(obj)
}

// Plan is an ordered list of steps.
type Plan struct {
	Steps []Step
}

func (p *Plan) Len() int {
	return len(p.Steps)
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Steps)
}

func (p *Plan) String() string {
	return llmutils.ToJSON(p)
}

// Parse decodes planner output and validates it against the catalog.
func Parse(raw []byte, cat *catalog.Catalog, maxSteps int) (*Plan, error) {
	p, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(cat, maxSteps); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode decodes planner output without validating it. The payload may
// be fenced or surrounded by chatty text.
func Decode(raw []byte) (*Plan, error) {
	data := llmutils.CleanJSON(raw)

	var raws []map[string]any
	if err := ljson.Unmarshal(data, &raws); err != nil {
		return nil, errors.WithMessagef(ErrInvalidPlan, "failed to decode plan: %s", err.Error())
	}
	return FromMaps(raws)
}

// FromMaps builds a Plan from decoded step objects, assigning 1-based
// indices in order.
func FromMaps(raws []map[string]any) (*Plan, error) {
	p := &Plan{
		Steps: make([]Step, 0, len(raws)),
	}
	for i, raw := range raws {
		step := Step{
			Index: i + 1,
			Args:  make(map[string]Value, len(raw)),
		}
		for k, v := range raw {
			if k == FuncKey {
				name, ok := v.(string)
				if !ok {
					return nil, errors.WithMessagef(ErrInvalidPlan, "step %d: func must be a string", step.Index)
				}
				step.Func = name
				continue
			}
			val, err := valueFromAny(v)
			if err != nil {
				return nil, errors.WithMessagef(ErrInvalidPlan, "step %d: argument %s: %s", step.Index, k, err.Error())
			}
			step.Args[k] = val
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func valueFromAny(v any) (Value, error) {
	if s, ok := v.(string); ok {
		if n, ok := ParseRef(s); ok {
			return NewRef(n), nil
		}
		// malformed reference tokens stay literal here and are
		// rejected by Validate
	}
	js, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return NewLiteral(js), nil
}

// Validate checks the plan shape before any invocation: step count
// within maxSteps, every func registered in the catalog, every
// reference strictly prior and well-formed. Every failure wraps
// ErrInvalidPlan.
func (p *Plan) Validate(cat *catalog.Catalog, maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if len(p.Steps) == 0 {
		return errors.WithMessage(ErrInvalidPlan, "plan has no steps")
	}
	if len(p.Steps) > maxSteps {
		return errors.WithMessagef(ErrInvalidPlan, "plan has %d steps, limit is %d", len(p.Steps), maxSteps)
	}
	for _, step := range p.Steps {
		if step.Func == "" {
			return errors.WithMessagef(ErrInvalidPlan, "step %d: missing func", step.Index)
		}
		if cat != nil && !cat.Has(step.Func) {
			return errors.WithMessagef(ErrInvalidPlan, "step %d: unknown tool: %s", step.Index, step.Func)
		}
		for name, v := range step.Args {
			if v.IsRef() {
				if v.Ref >= step.Index {
					return errors.WithMessagef(ErrInvalidPlan, "step %d: argument %s: RESULT_%d does not reference a strictly prior step", step.Index, name, v.Ref)
				}
				continue
			}
			if s, ok := v.StringLiteral(); ok && IsMalformedRef(s) {
				return errors.WithMessagef(ErrInvalidPlan, "step %d: argument %s: bad result reference: %q", step.Index, name, s)
			}
		}
	}
	return nil
}

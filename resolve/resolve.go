// Package resolve substitutes prior step results into a step's
// arguments before invocation.
//
// Resolution is deterministic and side-effect free: the same step, the
// same prior results, and the same catalog always produce the same
// argument object, so any substitution can be re-derived from the trace.
package resolve

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/trace"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/exp/maps"
)

var (
	// ErrUnresolvedDependency marks a reference to a step that has no
	// completed result.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	// ErrTypeMismatch marks a referenced result that cannot fill the
	// parameter it is bound to.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Arguments builds the resolved argument object for a step: catalog
// defaults merged under the caller's arguments, references substituted
// from prior results, and numeric-looking strings coerced for number
// parameters. prior holds the results of steps 1..len(prior).
func Arguments(step plan.Step, prior []trace.StepResult, cat *catalog.Catalog) (json.RawMessage, error) {
	entry := cat.Entry(step.Func)
	if entry == nil {
		return nil, errors.Errorf("unknown tool: %s", step.Func)
	}

	out := json.RawMessage(`{}`)
	var err error

	defaults := maps.Keys(entry.Defaults)
	slices.Sort(defaults)
	for _, name := range defaults {
		if _, ok := step.Args[name]; ok {
			// caller wins
			continue
		}
		out, err = sjson.SetBytes(out, name, entry.Defaults[name])
		if err != nil {
			return nil, errors.Wrapf(err, "step %d: default %s", step.Index, name)
		}
	}

	names := maps.Keys(step.Args)
	slices.Sort(names)
	for _, name := range names {
		val, err := resolveValue(step, name, entry, prior, cat)
		if err != nil {
			return nil, err
		}
		out, err = sjson.SetRawBytes(out, name, val)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d: argument %s", step.Index, name)
		}
	}

	return out, nil
}

func resolveValue(step plan.Step, name string, entry *catalog.Entry, prior []trace.StepResult, cat *catalog.Catalog) (json.RawMessage, error) {
	v := step.Args[name]
	p, declared := entry.Param(name)

	raw := v.Literal
	if v.IsRef() {
		res, err := referenced(step, name, v.Ref, prior)
		if err != nil {
			return nil, err
		}

		if declared && !p.Scalar() {
			// object parameters take the entire prior result as-is
			return res.Value, nil
		}
		if !declared {
			// parameters the catalog does not describe pass through
			// untouched, the remote tool decides
			return res.Value, nil
		}

		raw, err = scalarFrom(step, name, v.Ref, res, cat)
		if err != nil {
			return nil, err
		}
	}

	if declared && p.Numeric() {
		raw = coerceNumber(raw)
	}
	return raw, nil
}

func referenced(step plan.Step, name string, ref int, prior []trace.StepResult) (*trace.StepResult, error) {
	if ref < 1 || ref > len(prior) {
		return nil, errors.WithMessagef(ErrUnresolvedDependency, "step %d: argument %s: RESULT_%d has no recorded result", step.Index, name, ref)
	}
	res := &prior[ref-1]
	if !res.Completed() {
		return nil, errors.WithMessagef(ErrUnresolvedDependency, "step %d: argument %s: step %d did not complete", step.Index, name, ref)
	}
	return res, nil
}

// scalarFrom extracts a scalar from a referenced result: the value
// itself when it is scalar, the primary field of a structured result
// when the referenced tool declares one.
func scalarFrom(step plan.Step, name string, ref int, res *trace.StepResult, cat *catalog.Catalog) (json.RawMessage, error) {
	val := gjson.ParseBytes(res.Value)
	if !val.IsObject() && !val.IsArray() {
		return res.Value, nil
	}

	if refEntry := cat.Entry(res.Func); refEntry != nil && refEntry.Primary != "" {
		pv := gjson.GetBytes(res.Value, refEntry.Primary)
		if pv.Exists() && !pv.IsObject() && !pv.IsArray() {
			return json.RawMessage(pv.Raw), nil
		}
	}

	return nil, errors.WithMessagef(ErrTypeMismatch, "step %d: argument %s: structured result of step %d cannot fill a scalar parameter", step.Index, name, ref)
}

// coerceNumber rewrites a numeric-looking JSON string as a JSON number:
// text with a decimal point parses as a float, anything else as an
// integer. Non-numeric strings and non-string values pass through.
func coerceNumber(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}

	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return raw
		}
		js, _ := json.Marshal(f)
		return js
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return raw
	}
	js, _ := json.Marshal(i)
	return js
}

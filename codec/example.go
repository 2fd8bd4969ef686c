package codec

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/plan"
)

// kv is one example argument; declaration order drives rendering.
type kv struct {
	name  string
	value any
}

// exampleStep is one step of the example plan embedded in format
// instructions.
type exampleStep struct {
	fn   string
	args []kv
}

// buildExample produces a short example plan from the catalog: the
// first tool called with sample arguments, then a second call consuming
// "RESULT_1" where the result shape allows it.
func buildExample(cat *catalog.Catalog) []exampleStep {
	if cat == nil {
		return nil
	}
	names := cat.Names()
	if len(names) == 0 {
		return nil
	}

	first := cat.Entry(names[0])
	second := first
	if len(names) > 1 {
		second = cat.Entry(names[1])
	}

	call := exampleCall(second)
	if target := refTarget(first, second); target != "" {
		found := false
		for i, arg := range call.args {
			if arg.name == target {
				call.args[i].value = plan.RefToken(1)
				found = true
				break
			}
		}
		if !found {
			call.args = append(call.args, kv{name: target, value: plan.RefToken(1)})
		}
	}
	return []exampleStep{exampleCall(first), call}
}

// exampleCall builds one step with a sample value per parameter.
// Object parameters are left out; they are normally fed by a prior
// step's result.
func exampleCall(e *catalog.Entry) exampleStep {
	step := exampleStep{fn: e.Name}
	for _, name := range e.ParamNames() {
		p, _ := e.Param(name)
		v := exampleValue(e, name, p)
		if v == nil {
			continue
		}
		step.args = append(step.args, kv{name: name, value: v})
	}
	return step
}

func exampleValue(e *catalog.Entry, name string, p catalog.Param) any {
	if p.Example != nil {
		return p.Example
	}
	if v, ok := e.Defaults[name]; ok {
		return v
	}
	switch p.Kind {
	case catalog.KindNumber:
		return gofakeit.Number(1, 99)
	case catalog.KindString:
		return gofakeit.Word()
	case catalog.KindBool:
		return gofakeit.Bool()
	case catalog.KindEnum:
		return p.Enum[0]
	default:
		return nil
	}
}

// refTarget picks the parameter of next that can consume prior's
// result: an object parameter for a structured result, otherwise the
// first scalar parameter when the result substitutes as a scalar.
func refTarget(prior, next *catalog.Entry) string {
	names := next.ParamNames()
	if !prior.Scalar() {
		for _, name := range names {
			if p, ok := next.Param(name); ok && p.Kind == catalog.KindObject {
				return name
			}
		}
		if prior.Primary == "" {
			return ""
		}
	}
	for _, name := range names {
		if p, ok := next.Param(name); ok && (p.Kind == catalog.KindNumber || p.Kind == catalog.KindString) {
			return name
		}
	}
	return ""
}

// toolList renders the catalog one line per tool, optional parameters
// marked with "?".
func toolList(cat *catalog.Catalog) string {
	if cat == nil {
		return ""
	}
	var b strings.Builder
	for i, name := range cat.Names() {
		if i > 0 {
			b.WriteString("\n")
		}
		e := cat.Entry(name)
		b.WriteString(" - ")
		b.WriteString(e.Name)
		b.WriteString("(")
		for j, pn := range e.ParamNames() {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pn)
			if p, ok := e.Param(pn); ok && !p.Required {
				b.WriteString("?")
			}
		}
		b.WriteString(")")
		if e.Description != "" {
			b.WriteString(": ")
			b.WriteString(e.Description)
		}
	}
	return b.String()
}

package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/plan"
)

const jsonFormatInstructions = `
Respond with a JSON plan in the following format:
%s
Each step is an object: "func" names the tool, every other key is an
argument. Refer to the result of step N as "RESULT_N" (1-based).
Available tools:
%s
Output only the plan, no commentary.
`

// JSONDecoder parses plans emitted as JSON arrays, fenced or bare.
type JSONDecoder struct {
	cat *catalog.Catalog
}

// NewJSONDecoder creates a decoder for the default JSON wire format.
func NewJSONDecoder(cat *catalog.Catalog) *JSONDecoder {
	return &JSONDecoder{cat: cat}
}

// Decode parses planner output into a plan. Fenced or chatty payloads
// are cleaned before parsing.
func (d *JSONDecoder) Decode(raw []byte) (*plan.Plan, error) {
	return plan.Decode(raw)
}

// GetFormatInstructions describes the JSON plan format.
func (d *JSONDecoder) GetFormatInstructions() string {
	var b strings.Builder
	b.WriteString("[")
	for i, step := range buildExample(d.cat) {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  ")
		b.WriteString(renderJSONStep(step))
	}
	b.WriteString("\n]")

	codeblock := fmt.Sprintf("```json\n%s\n```", b.String())
	return fmt.Sprintf(jsonFormatInstructions, codeblock, toolList(d.cat))
}

func renderJSONStep(step exampleStep) string {
	var b strings.Builder
	b.WriteString(`{"func":`)
	b.Write(mustJSON(step.fn))
	for _, arg := range step.args {
		b.WriteString(",")
		b.Write(mustJSON(arg.name))
		b.WriteString(":")
		b.Write(mustJSON(arg.value))
	}
	b.WriteString("}")
	return b.String()
}

func mustJSON(v any) []byte {
	js, _ := json.Marshal(v)
	return js
}

package codec

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/pkg/llmutils"
	"github.com/effective-security/toolplan/plan"
	"sigs.k8s.io/yaml"
)

const yamlFormatInstructions = `
Respond with a YAML plan in the following format:
%s
Each step is a mapping: "func" names the tool, every other key is an
argument. Refer to the result of step N as "RESULT_N" (1-based).
Available tools:
%s
Output only the plan, no commentary.
`

// YAMLDecoder parses plans emitted as YAML step lists.
type YAMLDecoder struct {
	cat *catalog.Catalog
}

// NewYAMLDecoder creates a decoder for YAML plans.
func NewYAMLDecoder(cat *catalog.Catalog) *YAMLDecoder {
	return &YAMLDecoder{cat: cat}
}

// Decode parses a YAML step list, bare or wrapped in a "steps" mapping.
func (d *YAMLDecoder) Decode(raw []byte) (*plan.Plan, error) {
	data := llmutils.BytesTrimBackticks(raw)

	var raws []map[string]any
	if err := yaml.Unmarshal(data, &raws); err != nil {
		var wrapper struct {
			Steps []map[string]any `json:"steps"`
		}
		if werr := yaml.Unmarshal(data, &wrapper); werr != nil || len(wrapper.Steps) == 0 {
			return nil, errors.WithMessagef(plan.ErrInvalidPlan, "failed to decode YAML plan: %s", err.Error())
		}
		raws = wrapper.Steps
	}
	return plan.FromMaps(raws)
}

// GetFormatInstructions describes the YAML plan format.
func (d *YAMLDecoder) GetFormatInstructions() string {
	var b strings.Builder
	for i, step := range buildExample(d.cat) {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- func: ")
		b.WriteString(step.fn)
		for _, arg := range step.args {
			b.WriteString("\n  ")
			b.WriteString(arg.name)
			b.WriteString(": ")
			b.WriteString(yamlScalar(arg.value))
		}
	}

	codeblock := fmt.Sprintf("```yaml\n%s\n```", b.String())
	return fmt.Sprintf(yamlFormatInstructions, codeblock, toolList(d.cat))
}

func yamlScalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/pkg/llmutils"
	"github.com/effective-security/toolplan/plan"
)

const tomlFormatInstructions = `
Respond with a TOML plan in the following format:
%s
Each [[steps]] table is one call: "func" names the tool, every other
key is an argument. Refer to the result of step N as "RESULT_N"
(1-based).
Available tools:
%s
Output only the plan, no commentary.
`

// TOMLDecoder parses plans emitted as TOML [[steps]] tables. TOML has
// no top-level arrays, so the steps ride in an array of tables.
type TOMLDecoder struct {
	cat *catalog.Catalog
}

// NewTOMLDecoder creates a decoder for TOML plans.
func NewTOMLDecoder(cat *catalog.Catalog) *TOMLDecoder {
	return &TOMLDecoder{cat: cat}
}

// Decode parses a TOML plan.
func (d *TOMLDecoder) Decode(raw []byte) (*plan.Plan, error) {
	data := llmutils.BytesTrimBackticks(raw)

	var wrapper struct {
		Steps []map[string]any `toml:"steps"`
	}
	if err := toml.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.WithMessagef(plan.ErrInvalidPlan, "failed to decode TOML plan: %s", err.Error())
	}
	return plan.FromMaps(wrapper.Steps)
}

// GetFormatInstructions describes the TOML plan format.
func (d *TOMLDecoder) GetFormatInstructions() string {
	var b strings.Builder
	for i, step := range buildExample(d.cat) {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[[steps]]\nfunc = ")
		b.WriteString(strconv.Quote(step.fn))
		for _, arg := range step.args {
			b.WriteString("\n")
			b.WriteString(arg.name)
			b.WriteString(" = ")
			b.WriteString(tomlScalar(arg.value))
		}
	}

	codeblock := fmt.Sprintf("```toml\n%s\n```", b.String())
	return fmt.Sprintf(tomlFormatInstructions, codeblock, toolList(d.cat))
}

func tomlScalar(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}

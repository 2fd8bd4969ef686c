// Package codec decodes planner output into executable plans and
// publishes the format instructions a caller hands to its planner.
//
// JSON is the default wire format. YAML and TOML step lists are
// accepted for planners that emit them.
package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/plan"
)

// Assert that all decoders implement the Decoder interface.
var (
	_ Decoder = (*JSONDecoder)(nil)
	_ Decoder = (*YAMLDecoder)(nil)
	_ Decoder = (*TOMLDecoder)(nil)
)

// Decoder parses raw planner output into a plan and describes the wire
// format the planner is expected to produce.
type Decoder interface {
	// Decode parses raw planner output. The plan is not validated
	// against the catalog; that happens before execution.
	Decode(raw []byte) (*plan.Plan, error)
	// GetFormatInstructions returns the prompt text describing the
	// plan wire format, with an example built from the catalog.
	GetFormatInstructions() string
}

// Mode specifies the plan wire format.
type Mode = string

const (
	ModeJSON Mode = "json"
	ModeYAML Mode = "yaml"
	ModeTOML Mode = "toml"
)

// ModeDefault is the wire format used when none is configured.
var ModeDefault = ModeJSON

// PredefinedDecoder returns the decoder for the given mode. An empty
// mode selects ModeDefault.
func PredefinedDecoder(mode Mode, cat *catalog.Catalog) (Decoder, error) {
	if mode == "" {
		mode = ModeDefault
	}
	switch mode {
	case ModeJSON:
		return NewJSONDecoder(cat), nil
	case ModeYAML:
		return NewYAMLDecoder(cat), nil
	case ModeTOML:
		return NewTOMLDecoder(cat), nil
	default:
		return nil, errors.Errorf("unsupported plan format: %s", mode)
	}
}

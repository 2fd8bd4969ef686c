// Package mathtool serves the arithmetic demo tools: add, subtract,
// multiply and divide over two numbers, all with bare scalar results.
package mathtool

import (
	"context"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/mcp"
	"github.com/effective-security/toolplan/tools"
)

// ProviderName is the provider key the catalog entries carry.
const ProviderName = "math"

// Args is the argument struct shared by all four operations.
type Args struct {
	A float64 `json:"a" jsonschema:"description=First operand,example=12"`
	B float64 `json:"b" jsonschema:"description=Second operand,example=8"`
}

// Provider serves the math tools.
type Provider struct{}

var _ tools.Provider = (*Provider)(nil)

// New creates the math provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type operation struct {
	name        string
	description string
	handler     any
}

func (p *Provider) operations() []operation {
	return []operation{
		{"add", "Add two numbers", p.Add},
		{"subtract", "Subtract b from a", p.Subtract},
		{"multiply", "Multiply two numbers", p.Multiply},
		{"divide", "Divide a by b", p.Divide},
	}
}

// Entries describes the four operations to the plan catalog.
func (p *Provider) Entries() ([]*catalog.Entry, error) {
	ops := p.operations()
	entries := make([]*catalog.Entry, 0, len(ops))
	for _, op := range ops {
		e, err := catalog.Reflect(op.name, op.description, reflect.TypeOf(Args{}), catalog.ScalarResult)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e.WithProvider(ProviderName))
	}
	return entries, nil
}

// RegisterMCP registers the four operations with an MCP server.
func (p *Provider) RegisterMCP(registrator tools.McpServerRegistrator) error {
	for _, op := range p.operations() {
		if err := registrator.RegisterTool(op.name, op.description, op.handler); err != nil {
			return err
		}
	}
	return nil
}

// Add returns a + b.
func (p *Provider) Add(_ context.Context, args Args) (*mcp.ToolResponse, error) {
	return scalar(args.A + args.B), nil
}

// Subtract returns a - b.
func (p *Provider) Subtract(_ context.Context, args Args) (*mcp.ToolResponse, error) {
	return scalar(args.A - args.B), nil
}

// Multiply returns a * b.
func (p *Provider) Multiply(_ context.Context, args Args) (*mcp.ToolResponse, error) {
	return scalar(args.A * args.B), nil
}

// Divide returns a / b, failing on a zero divisor.
func (p *Provider) Divide(_ context.Context, args Args) (*mcp.ToolResponse, error) {
	if args.B == 0 {
		return nil, errors.New("Division by zero is not allowed.")
	}
	return scalar(args.A / args.B), nil
}

// scalar renders a number as bare JSON scalar text.
func scalar(v float64) *mcp.ToolResponse {
	return mcp.NewToolResponse(mcp.NewTextContent(strconv.FormatFloat(v, 'f', -1, 64)))
}

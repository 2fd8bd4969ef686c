package tools

import (
	"github.com/effective-security/toolplan/catalog"
)

// McpServerRegistrator registers tool handlers on an MCP server.
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// Provider is a set of related tools served from one MCP endpoint.
//
// Entries and RegisterMCP must agree: every registered tool has a catalog
// entry of the same name, and the entry's parameters match the handler's
// argument struct.
type Provider interface {
	// Name returns the provider name referenced by the catalog entries.
	Name() string
	// Entries describes the provider's tools to the plan catalog.
	Entries() ([]*catalog.Entry, error)
	// RegisterMCP registers the provider's tool handlers with an MCP server.
	RegisterMCP(registrator McpServerRegistrator) error
}

// Register installs the providers' tools on the server and returns the
// combined catalog entries.
func Register(registrator McpServerRegistrator, providers ...Provider) ([]*catalog.Entry, error) {
	var entries []*catalog.Entry
	for _, p := range providers {
		if err := p.RegisterMCP(registrator); err != nil {
			return nil, err
		}
		list, err := p.Entries()
		if err != nil {
			return nil, err
		}
		entries = append(entries, list...)
	}
	return entries, nil
}

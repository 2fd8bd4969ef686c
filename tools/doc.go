// Package tools defines the provider surface for tool servers: a provider
// registers its handlers on an MCP server and publishes matching catalog
// entries, so the tools a server answers for and the tools a plan may call
// come from the same declaration.
package tools

// Package mcp implements the Model Context Protocol surface the tool plan
// engine relies on: a server that exposes registered tools over a transport,
// and a client that initializes a session and calls them. Only the
// initialize, ping and tools/call methods are implemented; discovery,
// prompts and resources are not part of this surface.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ProtocolVersion is the MCP revision spoken by both sides.
const ProtocolVersion = "2024-11-05"

// ContentType discriminates the parts of a tool response.
type ContentType string

const (
	ContentTypeText ContentType = "text"
)

// TextContent is a plain text part of a tool response.
type TextContent struct {
	Text string `json:"text"`
}

// Content is one part of a tool response. Type selects which of the typed
// fields is set; only text content is supported.
type Content struct {
	Type        ContentType
	TextContent *TextContent
}

// NewTextContent creates a text content part.
func NewTextContent(text string) *Content {
	return &Content{
		Type:        ContentTypeText,
		TextContent: &TextContent{Text: text},
	}
}

// MarshalJSON flattens the content part into its wire form with a type
// discriminator.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentTypeText:
		if c.TextContent == nil {
			return nil, errors.New("text content is not set")
		}
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{
			Type: c.Type,
			Text: c.TextContent.Text,
		})
	}
	return nil, errors.Errorf("unknown content type: %s", c.Type)
}

// UnmarshalJSON reads the wire form produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type ContentType `json:"type"`
		Text string      `json:"text"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Type {
	case ContentTypeText:
		c.Type = ContentTypeText
		c.TextContent = &TextContent{Text: probe.Text}
		return nil
	}
	return errors.Errorf("unknown content type: %s", probe.Type)
}

// ToolResponse is the result of a tools/call. IsError marks a failure
// reported by the tool itself, with the failure text in Content; transport
// and protocol failures surface as JSON-RPC errors instead.
type ToolResponse struct {
	Content []*Content `json:"content"`
	IsError bool       `json:"isError,omitempty"`
}

// NewToolResponse creates a successful tool response from content parts.
func NewToolResponse(content ...*Content) *ToolResponse {
	return &ToolResponse{
		Content: content,
	}
}

// Text returns the concatenated text parts of the response.
func (r *ToolResponse) Text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c != nil && c.Type == ContentTypeText && c.TextContent != nil {
			sb.WriteString(c.TextContent.Text)
		}
	}
	return sb.String()
}

// Tool describes a registered tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ClientInfo identifies the client in the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities advertises what the client can do. The tool plan
// client needs nothing beyond the base protocol.
type ClientCapabilities struct{}

// ToolsCapability marks that the server serves tool calls.
type ToolsCapability struct{}

// ServerCapabilities advertises what the server can do.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeRequest is the params payload of the initialize method.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// InitializeResponse is the result payload of the initialize method.
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

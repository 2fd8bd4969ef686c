package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/mcp/internal/protocol"
	"github.com/effective-security/toolplan/mcp/transport"
)

// Client drives an MCP session over a transport: one initialize handshake,
// then any number of tool calls. Safe for concurrent use after Initialize.
type Client struct {
	transport transport.Transport
	protocol  *protocol.Protocol
	name      string
	version   string

	mu          sync.RWMutex
	initialized bool
	serverInfo  *ServerInfo
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientInfo sets the client identity sent in the initialize handshake.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}

// NewClient creates a client on the given transport. Initialize must be
// called before tools can be invoked.
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: tr,
		protocol:  protocol.NewProtocol(nil),
		name:      "toolplan",
		version:   "1.0.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize connects the transport and performs the initialize handshake.
func (c *Client) Initialize(ctx context.Context) (*InitializeResponse, error) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil, errors.New("client already initialized")
	}
	c.mu.Unlock()

	if err := c.protocol.Connect(c.transport); err != nil {
		return nil, errors.WithMessage(err, "failed to connect transport")
	}

	params := InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo: ClientInfo{
			Name:    c.name,
			Version: c.version,
		},
	}
	resp, err := c.protocol.Request(ctx, "initialize", params, nil)
	if err != nil {
		return nil, err
	}

	var out InitializeResponse
	if err := unmarshalResult(resp, &out); err != nil {
		return nil, err
	}

	if err := c.protocol.Notification("notifications/initialized", map[string]any{}); err != nil {
		return nil, errors.WithMessage(err, "failed to send initialized notification")
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = &out.ServerInfo
	c.mu.Unlock()

	return &out, nil
}

// Initialized reports whether the handshake has completed.
func (c *Client) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// ServerInfo returns the identity the server reported during the handshake,
// or nil before Initialize.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.protocol.Request(ctx, "ping", map[string]any{}, nil)
	return err
}

// CallTool invokes a tool by name. Arguments may be any JSON-marshallable
// value, typically a json.RawMessage of already resolved arguments. The
// context bounds the whole call.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (*ToolResponse, error) {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if !initialized {
		return nil, errors.New("client not initialized")
	}

	params := map[string]any{
		"name": name,
	}
	if arguments != nil {
		params["arguments"] = arguments
	}

	resp, err := c.protocol.Request(ctx, "tools/call", params, nil)
	if err != nil {
		return nil, err
	}

	var out ToolResponse
	if err := unmarshalResult(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close shuts the transport down.
func (c *Client) Close() error {
	return c.protocol.Close()
}

func unmarshalResult(resp any, out any) error {
	raw, ok := resp.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(resp)
		if err != nil {
			return errors.Wrap(err, "failed to marshal result")
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal result")
	}
	return nil
}

package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/mcp/internal/protocol"
	"github.com/effective-security/toolplan/mcp/transport"
	"github.com/effective-security/toolplan/schema"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolplan", "mcp")

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	toolResponseType = reflect.TypeOf((*ToolResponse)(nil))
)

// baseCallToolRequestParams is the params payload of tools/call. Arguments
// stay raw until the tool's own argument type is known.
type baseCallToolRequestParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolResponseSent adapts a handler outcome to the tools/call wire form.
// Handler errors are reported in-band with isError set, not as JSON-RPC
// errors, so the caller can tell a failing tool from a failing transport.
type toolResponseSent struct {
	Response *ToolResponse
	Error    error
}

func (c toolResponseSent) MarshalJSON() ([]byte, error) {
	if c.Error != nil {
		return json.Marshal(&ToolResponse{
			Content: []*Content{NewTextContent(c.Error.Error())},
			IsError: true,
		})
	}
	return json.Marshal(c.Response)
}

type registeredTool struct {
	tool    Tool
	handler func(ctx context.Context, args json.RawMessage) *toolResponseSent
}

// Server exposes registered tools over a transport. Tool handlers are plain
// functions taking a typed arguments struct; the struct is reflected into a
// JSON schema at registration time.
type Server struct {
	transport transport.Transport
	protocol  *protocol.Protocol
	name      string
	version   string

	mu        sync.RWMutex
	tools     map[string]*registeredTool
	isRunning bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithName sets the server name reported in the initialize handshake.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version reported in the initialize handshake.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a server on the given transport. Serve must be called
// before the server handles requests.
func NewServer(tr transport.Transport, opts ...ServerOption) *Server {
	s := &Server{
		transport: tr,
		protocol:  protocol.NewProtocol(nil),
		name:      "toolplan",
		version:   "1.0.0",
		tools:     make(map[string]*registeredTool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool registers a tool handler under the given name. The handler
// must be func(args T) (*ToolResponse, error) or
// func(ctx context.Context, args T) (*ToolResponse, error) where T is a
// struct; its JSON schema is derived from T. Registering a name twice
// replaces the previous handler.
func (s *Server) RegisterTool(name string, description string, handler any) error {
	wrapped, argsType, err := wrapToolHandler(handler)
	if err != nil {
		return errors.WithMessagef(err, "tool %s", name)
	}

	sch, err := schema.New(argsType)
	if err != nil {
		return errors.WithMessagef(err, "tool %s: failed to reflect arguments schema", name)
	}
	rawSchema, err := json.Marshal(sch.Parameters)
	if err != nil {
		return errors.Wrapf(err, "tool %s: failed to marshal arguments schema", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[name] = &registeredTool{
		tool: Tool{
			Name:        name,
			Description: description,
			InputSchema: rawSchema,
		},
		handler: wrapped,
	}
	return nil
}

// DeregisterTool removes a registered tool.
func (s *Server) DeregisterTool(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; !ok {
		return errors.Errorf("unknown tool: %s", name)
	}
	delete(s.tools, name)
	return nil
}

// Tools returns descriptors of the registered tools, sorted by name.
func (s *Server) Tools() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.tools))
	for _, rt := range s.tools {
		out = append(out, rt.tool)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Serve installs the method handlers and starts the transport. With a
// listening transport this call blocks until the transport shuts down.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	pr := s.protocol
	pr.SetRequestHandler("initialize", s.handleInitialize)
	pr.SetRequestHandler("ping", s.handlePing)
	pr.SetRequestHandler("tools/call", s.handleToolCalls)

	return pr.Connect(s.transport)
}

// Close shuts the transport down.
func (s *Server) Close() error {
	return s.protocol.Close()
}

func (s *Server) handleInitialize(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.WithMessage(err, "failed to unmarshal initialize params")
		}
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"method", "initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
	)

	return InitializeResponse{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

func (s *Server) handlePing(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

func (s *Server) handleToolCalls(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	params := baseCallToolRequestParams{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal arguments")
	}

	s.mu.RLock()
	tool := s.tools[params.Name]
	s.mu.RUnlock()
	if tool == nil {
		return nil, errors.Errorf("unknown tool: %s", params.Name)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "method", "tools/call", "tool", params.Name)
	return tool.handler(ctx, params.Arguments), nil
}

// wrapToolHandler validates the handler signature and returns an untyped
// invoker plus the arguments struct type.
func wrapToolHandler(handler any) (func(context.Context, json.RawMessage) *toolResponseSent, reflect.Type, error) {
	hv := reflect.ValueOf(handler)
	ht := hv.Type()
	if ht.Kind() != reflect.Func {
		return nil, nil, errors.New("handler must be a function")
	}

	takesCtx := false
	switch ht.NumIn() {
	case 1:
	case 2:
		if !ht.In(0).Implements(contextType) {
			return nil, nil, errors.New("first handler argument must be context.Context")
		}
		takesCtx = true
	default:
		return nil, nil, errors.New("handler must take an arguments struct, optionally preceded by a context")
	}

	argsType := ht.In(ht.NumIn() - 1)
	if argsType.Kind() != reflect.Struct {
		return nil, nil, errors.New("handler arguments must be a struct")
	}

	if ht.NumOut() != 2 || ht.Out(0) != toolResponseType || !ht.Out(1).Implements(errorType) {
		return nil, nil, errors.New("handler must return (*ToolResponse, error)")
	}

	wrapped := func(ctx context.Context, rawArgs json.RawMessage) (resp *toolResponseSent) {
		defer func() {
			if r := recover(); r != nil {
				logger.ContextKV(ctx, xlog.ERROR, "reason", "tool_panic", "recovered", r)
				resp = &toolResponseSent{Error: errors.Errorf("internal error: %v", r)}
			}
		}()

		args := reflect.New(argsType)
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, args.Interface()); err != nil {
				return &toolResponseSent{Error: errors.WithMessage(err, "failed to unmarshal arguments")}
			}
		}

		in := []reflect.Value{args.Elem()}
		if takesCtx {
			in = append([]reflect.Value{reflect.ValueOf(ctx)}, in...)
		}
		out := hv.Call(in)
		if errv := out[1].Interface(); errv != nil {
			return &toolResponseSent{Error: errv.(error)}
		}
		return &toolResponseSent{Response: out[0].Interface().(*ToolResponse)}
	}
	return wrapped, argsType, nil
}

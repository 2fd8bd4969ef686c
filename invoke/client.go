package invoke

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/mcp"
	"github.com/effective-security/toolplan/mcp/transport"
	"github.com/effective-security/toolplan/mcp/transport/httptransport"
	"github.com/effective-security/toolplan/pkg/metricskey"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolplan", "invoke")

// DefaultCallTimeout bounds a single tool call, initialization included.
const DefaultCallTimeout = 10 * time.Second

// DefaultProvider keys the endpoint used by catalog entries that do not
// name a provider.
const DefaultProvider = "default"

// Client is the MCP-backed Invoker. It holds one lazily initialized MCP
// client per provider and is safe for concurrent use.
type Client struct {
	cat       *catalog.Catalog
	endpoints map[string]string
	headers   map[string]map[string]string
	timeout   time.Duration
	hc        *http.Client

	mu      sync.Mutex
	clients map[string]*mcp.Client
}

var _ Invoker = (*Client)(nil)

// NewClient creates an invoker for the given catalog. endpoints maps
// provider names to MCP base URLs.
func NewClient(cat *catalog.Catalog, endpoints map[string]string) *Client {
	return &Client{
		cat:       cat,
		endpoints: endpoints,
		timeout:   DefaultCallTimeout,
		clients:   make(map[string]*mcp.Client),
	}
}

// WithCallTimeout overrides the per-call deadline.
func (c *Client) WithCallTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithHTTPClient sets the HTTP client shared by the provider transports.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

// WithHeaders adds headers, such as authorization, to every request sent
// to the named provider. Call before the first Invoke.
func (c *Client) WithHeaders(provider string, headers map[string]string) *Client {
	if c.headers == nil {
		c.headers = make(map[string]map[string]string)
	}
	c.headers[provider] = headers
	return c
}

// Invoke performs a single tools/call attempt and normalizes the reply to
// the result shape the catalog declares for the tool.
func (c *Client) Invoke(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	entry := c.cat.Entry(tool)
	if entry == nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, tool)
		return nil, errors.WithMessagef(ErrProtocol, "unknown tool: %s", tool)
	}

	client, err := c.provider(ctx, entry.Provider)
	if err != nil {
		return nil, err
	}

	var payload any
	if len(args) > 0 {
		payload = args
	}

	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.CallTool(callCtx, tool, payload)
	metricskey.PerfToolInvoke.MeasureSince(started, tool)
	if err != nil {
		err = classify(tool, err)
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", tool,
			"kind", KindOf(err),
			"err", err.Error(),
		)
		return nil, err
	}
	if resp.IsError {
		return nil, errors.WithMessagef(ErrRemoteFault, "tool %s: %s", tool, resp.Text())
	}

	return normalize(entry, resp.Text())
}

// provider returns the initialized MCP client serving the named provider,
// creating it on first use.
func (c *Client) provider(ctx context.Context, name string) (*mcp.Client, error) {
	name = values.StringsCoalesce(name, DefaultProvider)

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[name]; ok {
		return client, nil
	}

	endpoint, ok := c.endpoints[name]
	if !ok {
		return nil, errors.WithMessagef(ErrConnection, "no endpoint for provider: %s", name)
	}

	tr := httptransport.NewHTTPClientTransport(endpoint)
	if c.hc != nil {
		tr = tr.WithHTTPClient(c.hc)
	}
	for key, value := range c.headers[name] {
		tr = tr.WithHeader(key, value)
	}
	client := mcp.NewClient(tr, mcp.WithClientInfo("toolplan", "1.0.0"))

	initCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := client.Initialize(initCtx); err != nil {
		return nil, classify(name, err)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", name,
		"endpoint", endpoint,
	)

	c.clients[name] = client
	return client, nil
}

// classify maps a call failure onto the invocation taxonomy. Caller
// cancellation passes through unclassified; it is not a tool failure.
func classify(tool string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WithMessagef(ErrTimeout, "tool %s: call timed out", tool)
	}

	var rpcErr *transport.RPCError
	if errors.As(err, &rpcErr) {
		return errors.WithMessagef(ErrRemoteFault, "tool %s: %s", tool, rpcErr.Message)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.WithMessagef(ErrConnection, "tool %s: %s", tool, urlErr.Err.Error())
	}

	return errors.WithMessagef(ErrProtocol, "tool %s: %s", tool, err.Error())
}

// normalize shapes the tool's text content per the catalog declaration:
// scalar tools yield a bare JSON scalar, structured tools a JSON object.
// Plain text that is not valid JSON becomes a JSON string.
func normalize(entry *catalog.Entry, text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s: empty result content", entry.Name)
	}

	if json.Valid([]byte(trimmed)) {
		v := gjson.Parse(trimmed)
		if entry.Scalar() {
			if v.IsObject() || v.IsArray() {
				return nil, errors.WithMessagef(ErrProtocol, "tool %s: structured content for a scalar result", entry.Name)
			}
			return json.RawMessage(trimmed), nil
		}
		if !v.IsObject() {
			return nil, errors.WithMessagef(ErrProtocol, "tool %s: scalar content for a structured result", entry.Name)
		}
		return json.RawMessage(trimmed), nil
	}

	if !entry.Scalar() {
		return nil, errors.WithMessagef(ErrProtocol, "tool %s: scalar content for a structured result", entry.Name)
	}
	out, _ := json.Marshal(trimmed)
	return out, nil
}

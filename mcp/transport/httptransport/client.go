package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/effective-security/toolplan/mcp/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionIDHeader carries the client session id on every request, so the
// server can correlate the stateless posts of one client.
const SessionIDHeader = "Mcp-Session-Id"

// HTTPClientTransport implements the client side of the stateless HTTP
// transport. Every Send posts one JSON-RPC message to the base URL and
// classifies whatever comes back in the HTTP response body.
type HTTPClientTransport struct {
	baseURL        string
	sessionID      string
	client         *http.Client
	headers        map[string]string
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
}

// NewHTTPClientTransport creates a new client transport that posts to the
// given base URL
func NewHTTPClientTransport(baseURL string) *HTTPClientTransport {
	return &HTTPClientTransport{
		baseURL:   baseURL,
		sessionID: uuid.NewString(),
		client:    http.DefaultClient,
		headers:   make(map[string]string),
	}
}

// SessionID returns the id sent with every request of this transport.
func (t *HTTPClientTransport) SessionID() string {
	return t.sessionID
}

// WithHTTPClient sets the HTTP client used for requests. Deadlines are
// expected to arrive through the Send context, so the default client has no
// timeout of its own.
func (t *HTTPClientTransport) WithHTTPClient(client *http.Client) *HTTPClientTransport {
	t.client = client
	return t
}

// WithHeader adds a header to every request
func (t *HTTPClientTransport) WithHeader(key, value string) *HTTPClientTransport {
	t.headers[key] = value
	return t
}

// Start implements Transport.Start
func (t *HTTPClientTransport) Start(ctx context.Context) error {
	// Does nothing in the stateless http client transport
	return nil
}

// Send implements Transport.Send
func (t *HTTPClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionIDHeader, t.sessionID)
	t.mu.RLock()
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	t.mu.RUnlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("server returned error: %d", resp.StatusCode)
	}

	// Notifications are acknowledged with an empty body.
	if len(body) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	// Try to unmarshal as a response first
	var response transport.BaseJSONRPCResponse
	if err := json.Unmarshal(body, &response); err == nil {
		if handler != nil {
			handler(ctx, transport.NewBaseMessageResponse(&response))
		}
		return nil
	}

	// Try as an error
	var errorResponse transport.BaseJSONRPCError
	if err := json.Unmarshal(body, &errorResponse); err == nil {
		if handler != nil {
			handler(ctx, transport.NewBaseMessageError(&errorResponse))
		}
		return nil
	}

	// Try as a notification
	var notification transport.BaseJSONRPCNotification
	if err := json.Unmarshal(body, &notification); err == nil {
		if handler != nil {
			handler(ctx, transport.NewBaseMessageNotification(&notification))
		}
		return nil
	}

	// Try as a request
	var request transport.BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err == nil {
		if handler != nil {
			handler(ctx, transport.NewBaseMessageRequest(&request))
		}
		return nil
	}

	return errors.Errorf("received invalid response")
}

// Close implements Transport.Close
func (t *HTTPClientTransport) Close() error {
	if t.closeHandler != nil {
		t.closeHandler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *HTTPClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *HTTPClientTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *HTTPClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

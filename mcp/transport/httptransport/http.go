// Package httptransport implements stateless HTTP transports for MCP.
//
// Each JSON-RPC request travels in its own HTTP POST and the JSON-RPC
// response travels back in the HTTP response body, so no connection state
// survives between calls. Notifications sent from the server side have no
// channel to travel on and are silently dropped.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/effective-security/toolplan/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolplan/mcp/transport", "httptransport")

// HTTPTransport implements the server side of the stateless HTTP transport.
// Incoming request ids are remapped to a private counter while the request
// is in flight, so concurrent posts with colliding client ids cannot cross
// wires, and restored before the response is written.
type HTTPTransport struct {
	server         *http.Server
	endpoint       string
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	atomicCounter  int64
	addr           string
	mounted        bool
}

// NewHTTPTransport creates a new HTTP transport that serves the specified endpoint
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		endpoint:    endpoint,
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
		addr:        ":8080", // Default port
	}
}

// WithAddr sets the address to listen on
func (t *HTTPTransport) WithAddr(addr string) *HTTPTransport {
	t.addr = addr
	return t
}

// Handler returns the http.Handler serving the transport endpoint, for
// callers that mount the transport on their own server or on an
// httptest.Server. After Handler is called, Start does not listen.
func (t *HTTPTransport) Handler() http.Handler {
	t.mu.Lock()
	t.mounted = true
	t.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(t.endpoint, t.handleRequest)
	return mux
}

// Start implements Transport.Start
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.RLock()
	mounted := t.mounted
	t.mu.RUnlock()
	if mounted {
		// An external server owns the listener.
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.endpoint, t.handleRequest)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	return t.server.ListenAndServe()
}

// Send implements Transport.Send
func (t *HTTPTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		// Notifications have no HTTP response to ride on.
		return nil
	}
	key := int64(message.MessageID())
	logger.ContextKV(ctx, xlog.DEBUG,
		"type", message.Type,
		"key", key,
	)

	t.mu.RLock()
	responseChannel := t.responseMap[key]
	t.mu.RUnlock()
	if responseChannel == nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"type", message.Type,
			"key", key,
			"err", "no response channel found",
		)
		return errors.Errorf("no response channel found for key: %d", key)
	}
	responseChannel <- message
	return nil
}

// Close implements Transport.Close
func (t *HTTPTransport) Close() error {
	if t.server != nil {
		if err := t.server.Close(); err != nil {
			return err
		}
	}
	if t.closeHandler != nil {
		t.closeHandler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *HTTPTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *HTTPTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *HTTPTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

func (t *HTTPTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if sid := r.Header.Get(SessionIDHeader); sid != "" {
		logger.ContextKV(ctx, xlog.DEBUG, "session", sid)
	}
	body, err := t.readBody(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := t.handleMessage(ctx, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		if t.errorHandler != nil {
			t.errorHandler(errors.Wrap(err, "failed to marshal response"))
		}
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonData)
}

// handleMessage classifies an incoming message, hands it to the message
// handler and blocks until the protocol layer sends the reply
func (t *HTTPTransport) handleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	t.mu.Lock()
	key := atomic.AddInt64(&t.atomicCounter, 1)
	t.responseMap[key] = make(chan *transport.BaseJsonRpcMessage)
	t.mu.Unlock()

	var prevId *transport.RequestId = nil
	deserialized := false
	// Try to unmarshal as a request first
	var request transport.BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err == nil {
		deserialized = true
		id := request.Id
		prevId = &id
		request.Id = transport.RequestId(key)
		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()

		if handler != nil {
			handler(ctx, transport.NewBaseMessageRequest(&request))
		}
	}

	// Try as a notification
	var notification transport.BaseJSONRPCNotification
	if !deserialized {
		if err := json.Unmarshal(body, &notification); err == nil {
			t.mu.RLock()
			handler := t.messageHandler
			t.mu.RUnlock()

			if handler != nil {
				handler(ctx, transport.NewBaseMessageNotification(&notification))
			}
		}
		// Notifications are acknowledged with an empty body.
		t.mu.Lock()
		delete(t.responseMap, key)
		t.mu.Unlock()
		return &transport.BaseJsonRpcMessage{
			Type: transport.BaseMessageTypeJSONRPCResponseType,
		}, nil
	}

	// Block until the response is received
	t.mu.RLock()
	ch := t.responseMap[key]
	t.mu.RUnlock()

	responseToUse := <-ch

	t.mu.Lock()
	delete(t.responseMap, key)
	t.mu.Unlock()

	if prevId != nil {
		switch responseToUse.Type {
		case transport.BaseMessageTypeJSONRPCResponseType:
			responseToUse.JsonRpcResponse.Id = *prevId
		case transport.BaseMessageTypeJSONRPCErrorType:
			responseToUse.JsonRpcError.Id = *prevId
		}
	}

	return responseToUse, nil
}

// readBody reads and returns the body from an io.Reader
func (t *HTTPTransport) readBody(reader io.Reader) ([]byte, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		if t.errorHandler != nil {
			t.errorHandler(errors.Wrap(err, "failed to read request body"))
		}
		return nil, errors.Wrap(err, "failed to read request body")
	}
	return body, nil
}

// Package testingutils provides an in-memory transport for exercising the
// protocol and server layers without a network.
package testingutils

import (
	"context"
	"sync"

	"github.com/effective-security/toolplan/mcp/transport"
)

// MockTransport records every message sent through it and lets tests inject
// incoming messages with SimulateMessage.
type MockTransport struct {
	mu             sync.Mutex
	started        bool
	messages       []*transport.BaseJsonRpcMessage
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

// NewMockTransport creates an unstarted mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Start implements Transport.Start
func (t *MockTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

// Send implements Transport.Send by recording the message.
func (t *MockTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, message)
	return nil
}

// Close implements Transport.Close
func (t *MockTransport) Close() error {
	t.mu.Lock()
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *MockTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *MockTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *MockTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// Started reports whether Start was called.
func (t *MockTransport) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// GetMessages returns the messages sent so far.
func (t *MockTransport) GetMessages() []*transport.BaseJsonRpcMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*transport.BaseJsonRpcMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// SimulateMessage delivers a message to the installed message handler, as if
// it had arrived over the wire.
func (t *MockTransport) SimulateMessage(message *transport.BaseJsonRpcMessage) {
	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	if handler != nil {
		handler(context.Background(), message)
	}
}

// SimulateError delivers an error to the installed error handler.
func (t *MockTransport) SimulateError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

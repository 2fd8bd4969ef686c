// Package localtransport implements in-process MCP transports, used to wire
// a client and a server together without a network. The server side exposes
// HandleMessage for a dispatcher to feed raw JSON-RPC bodies into, and the
// client side talks to a Handler instead of a socket.
package localtransport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/mcp/transport"
)

// Transport is the server side of the in-process transport. It mirrors the
// stateless HTTP transport: each HandleMessage call remaps the request id,
// blocks until the protocol layer replies, and restores the original id.
type Transport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	atomicCounter  int64
}

func New() *Transport {
	return &Transport{
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
}

func (s *Transport) Start(ctx context.Context) error {
	// Does nothing in the stateless local transport
	return nil
}

// Close closes the connection.
func (s *Transport) Close() error {
	if s.closeHandler != nil {
		s.closeHandler()
	}
	return nil
}

// SetErrorHandler sets the callback for when an error occurs.
// Note that errors are not necessarily fatal; they are used for reporting any kind of exceptional condition out of band.
func (s *Transport) SetErrorHandler(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
// This should be invoked when Close() is called as well.
func (s *Transport) SetCloseHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// SetMessageHandler sets the callback for when a message (request, notification or response) is received over the connection.
// Partially deserializes the messages to pass a BaseJsonRpcMessage
func (s *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

// Send sends a JSON-RPC message (request, notification or response).
func (s *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		// Notifications have no pending call to ride on.
		return nil
	}
	key := int64(message.MessageID())

	s.mu.RLock()
	responseChannel := s.responseMap[key]
	s.mu.RUnlock()

	if responseChannel == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}
	responseChannel <- message
	return nil
}

// HandleMessage processes an incoming message and returns a response
func (s *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	s.mu.Lock()
	key := atomic.AddInt64(&s.atomicCounter, 1)
	s.responseMap[key] = make(chan *transport.BaseJsonRpcMessage)
	s.mu.Unlock()

	var prevId *transport.RequestId = nil
	deserialized := false
	// Try to unmarshal as a request first
	var request transport.BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err == nil {
		deserialized = true
		id := request.Id
		prevId = &id
		request.Id = transport.RequestId(key)
		s.mu.RLock()
		handler := s.messageHandler
		s.mu.RUnlock()

		if handler != nil {
			handler(ctx, transport.NewBaseMessageRequest(&request))
		}
	}

	// Try as a notification
	var notification transport.BaseJSONRPCNotification
	if !deserialized {
		if err := json.Unmarshal(body, &notification); err == nil {
			s.mu.RLock()
			handler := s.messageHandler
			s.mu.RUnlock()

			if handler != nil {
				handler(ctx, transport.NewBaseMessageNotification(&notification))
			}
		}
		// Notifications are acknowledged with an empty response.
		s.mu.Lock()
		delete(s.responseMap, key)
		s.mu.Unlock()
		return &transport.BaseJsonRpcMessage{
			Type: transport.BaseMessageTypeJSONRPCResponseType,
		}, nil
	}

	// Block until the response is received
	s.mu.RLock()
	ch := s.responseMap[key]
	s.mu.RUnlock()

	responseToUse := <-ch

	s.mu.Lock()
	delete(s.responseMap, key)
	s.mu.Unlock()

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

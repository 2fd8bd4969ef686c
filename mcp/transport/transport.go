// Package transport defines the message framing shared by every MCP
// transport implementation.
//
// A transport moves JSON-RPC 2.0 messages between a client and a server
// without interpreting them. The four message kinds (request, notification,
// response and error) are deserialized strictly: a payload only unmarshals
// into the kind whose required fields it carries, so callers can classify an
// incoming body by trying the kinds in order. A notification must not carry
// an id, and responses are told apart from errors by the result or error
// member they carry.
//
// Transports deliver classified messages through the handler installed with
// SetMessageHandler and report out-of-band failures through SetErrorHandler.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// RequestId is a JSON-RPC request identifier. Transports may remap it while
// a message is in flight, as long as the original value is restored on the
// matching response.
type RequestId int64

// JsonRpcBody is the result payload of a request handler, marshalled into
// the response's result field.
type JsonRpcBody any

// BaseMessageType discriminates the kinds of JSON-RPC messages.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// Transport is an abstract interface for a bidirectional MCP message
// channel. Implementations are stateless HTTP, an in-process pipe, or
// anything else that can carry JSON-RPC payloads.
type Transport interface {
	// Start begins processing messages on the transport. This should only be
	// called after callbacks are installed via the Set* methods.
	Start(ctx context.Context) error

	// Send delivers a JSON-RPC message (request, notification or response).
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close closes the connection.
	Close() error

	// SetCloseHandler sets the callback for when the connection is closed for
	// any reason. This should be invoked when Close() is called as well.
	SetCloseHandler(handler func())

	// SetErrorHandler sets the callback for when an error occurs. Errors are
	// not necessarily fatal; they are used for reporting any kind of
	// exceptional condition out of band.
	SetErrorHandler(handler func(err error))

	// SetMessageHandler sets the callback for when a message arrives over the
	// connection.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}

// BaseJSONRPCRequest is a request that expects a response.
type BaseJSONRPCRequest struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      RequestId `json:"id"`
	Method  string    `json:"method"`
	// Params is kept raw so the method handler can unmarshal it into its own
	// parameter type.
	Params json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON rejects payloads that are not requests.
func (m *BaseJSONRPCRequest) UnmarshalJSON(data []byte) error {
	probe := struct {
		Jsonrpc *string         `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Method  *string         `json:"method"`
		Params  json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Jsonrpc == nil {
		return errors.New("field jsonrpc in BaseJSONRPCRequest: required")
	}
	if probe.Id == nil {
		return errors.New("field id in BaseJSONRPCRequest: required")
	}
	if probe.Method == nil {
		return errors.New("field method in BaseJSONRPCRequest: required")
	}
	m.Jsonrpc = *probe.Jsonrpc
	m.Id = *probe.Id
	m.Method = *probe.Method
	m.Params = probe.Params
	return nil
}

// BaseJSONRPCNotification is a one-way message that expects no response.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON rejects payloads that are not notifications. In particular a
// payload carrying an id is a request, not a notification.
func (m *BaseJSONRPCNotification) UnmarshalJSON(data []byte) error {
	probe := struct {
		Jsonrpc *string         `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Method  *string         `json:"method"`
		Params  json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Jsonrpc == nil {
		return errors.New("field jsonrpc in BaseJSONRPCNotification: required")
	}
	if probe.Method == nil {
		return errors.New("field method in BaseJSONRPCNotification: required")
	}
	if probe.Id != nil {
		return errors.New("field id in BaseJSONRPCNotification: not allowed")
	}
	m.Jsonrpc = *probe.Jsonrpc
	m.Method = *probe.Method
	m.Params = probe.Params
	return nil
}

// BaseJSONRPCResponse is a successful reply to a request.
type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      RequestId       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// UnmarshalJSON rejects payloads that are not successful responses.
func (m *BaseJSONRPCResponse) UnmarshalJSON(data []byte) error {
	probe := struct {
		Jsonrpc *string         `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Result  json.RawMessage `json:"result"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Jsonrpc == nil {
		return errors.New("field jsonrpc in BaseJSONRPCResponse: required")
	}
	if probe.Id == nil {
		return errors.New("field id in BaseJSONRPCResponse: required")
	}
	if probe.Result == nil {
		return errors.New("field result in BaseJSONRPCResponse: required")
	}
	m.Jsonrpc = *probe.Jsonrpc
	m.Id = *probe.Id
	m.Result = probe.Result
	return nil
}

// BaseJSONRPCErrorInner carries the error details of a failed request.
type BaseJSONRPCErrorInner struct {
	// Code is the error type that occurred.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data holds additional information about the error, if any.
	Data json.RawMessage `json:"data,omitempty"`
}

// BaseJSONRPCError is an error reply to a request.
type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Id      RequestId             `json:"id"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// RPCError is the Go error surfaced to a caller whose request was answered
// with a JSON-RPC error object. Callers can recover the code with errors.As.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// UnmarshalJSON rejects payloads that are not error responses.
func (m *BaseJSONRPCError) UnmarshalJSON(data []byte) error {
	probe := struct {
		Jsonrpc *string                `json:"jsonrpc"`
		Id      *RequestId             `json:"id"`
		Error   *BaseJSONRPCErrorInner `json:"error"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Jsonrpc == nil {
		return errors.New("field jsonrpc in BaseJSONRPCError: required")
	}
	if probe.Id == nil {
		return errors.New("field id in BaseJSONRPCError: required")
	}
	if probe.Error == nil {
		return errors.New("field error in BaseJSONRPCError: required")
	}
	m.Jsonrpc = *probe.Jsonrpc
	m.Id = *probe.Id
	m.Error = *probe.Error
	return nil
}

// BaseJsonRpcMessage is a tagged union over the four message kinds. Exactly
// one of the pointer fields is set, matching Type.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

// NewBaseMessageRequest wraps a request into a BaseJsonRpcMessage.
func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

// NewBaseMessageNotification wraps a notification into a BaseJsonRpcMessage.
func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

// NewBaseMessageResponse wraps a response into a BaseJsonRpcMessage.
func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

// NewBaseMessageError wraps an error response into a BaseJsonRpcMessage.
func NewBaseMessageError(errorResponse *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: errorResponse,
	}
}

// MarshalJSON writes the wrapped message; the union itself never appears on
// the wire.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %s", m.Type)
}

// MessageID returns the id of the wrapped message, or 0 for notifications.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return RequestId(0)
}

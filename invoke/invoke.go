// Package invoke dispatches resolved tool calls to the providers serving
// them and classifies what went wrong when they fail.
package invoke

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source=invoke.go -destination=../mocks/mockinvoke/invoke_mock.gen.go -package mockinvoke

// Invoker performs a single attempt of a tool call with fully resolved
// arguments. Implementations never retry; retry is a caller policy.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error)
}

// Sentinels for the four invocation failure classes. Errors returned by an
// Invoker wrap exactly one of them; classify with KindOf or errors.Is.
var (
	// ErrConnection marks calls that never reached the tool: refused
	// connections, DNS failures, unknown providers.
	ErrConnection = errors.New("connection error")
	// ErrRemoteFault marks calls the tool received and answered with a
	// failure, either a JSON-RPC error object or an in-band tool error.
	ErrRemoteFault = errors.New("remote fault")
	// ErrTimeout marks calls abandoned because the per-call deadline expired.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol marks replies that arrived but could not be interpreted,
	// such as structured content where the catalog declares a scalar.
	ErrProtocol = errors.New("protocol error")
)

// Kind names an invocation failure class, usable as a metrics tag and in
// trace reasons.
type Kind string

const (
	KindNone        Kind = ""
	KindConnection  Kind = "connection"
	KindRemoteFault Kind = "remote_fault"
	KindTimeout     Kind = "timeout"
	KindProtocol    Kind = "protocol"
)

// Retryable reports whether another attempt of the same call could
// plausibly succeed. A remote fault or a protocol violation will repeat.
func (k Kind) Retryable() bool {
	return k == KindConnection || k == KindTimeout
}

// KindOf classifies an invocation error by its sentinel.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrRemoteFault):
		return KindRemoteFault
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	}
	return KindNone
}

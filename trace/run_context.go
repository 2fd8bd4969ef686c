package trace

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// RunContext carries the identity of one plan run through the executor,
// callbacks, and logging.
type RunContext interface {
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type runContext struct {
	runID    string
	metadata sync.Map
	appData  any
}

func (c *runContext) RunID() string {
	return c.runID
}

func (c *runContext) AppData() any {
	return c.appData
}

func (c *runContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *runContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

func NewRunContext(runID string, appData any) RunContext {
	return &runContext{
		runID:    values.StringsCoalesce(runID, NewRunID()),
		appData:  appData,
		metadata: sync.Map{},
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithRunContext returns a new context with RunContext value
func WithRunContext(ctx context.Context, runCtx RunContext) context.Context {
	return context.WithValue(ctx, keyContext, runCtx)
}

// GetRunContext retrieves the RunContext from the context
func GetRunContext(ctx context.Context) RunContext {
	if v, ok := ctx.Value(keyContext).(RunContext); ok {
		return v
	}
	return nil
}

// GetRunID retrieves the run ID from the provided context.
// If the context does not contain a RunContext, it returns an empty string.
func GetRunID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(RunContext); ok {
		return v.RunID()
	}
	return ""
}

// NewRunID generates a new run ID using the flake ID generator.
func NewRunID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}

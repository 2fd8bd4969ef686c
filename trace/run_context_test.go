package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunContext_Basics(t *testing.T) {
	t.Parallel()
	c := NewRunContext("run1", 123)
	require.NotNil(t, c)
	assert.Equal(t, "run1", c.RunID())
	assert.Equal(t, 123, c.AppData())

	// Metadata
	val, ok := c.GetMetadata("not-found")
	assert.Nil(t, val)
	assert.False(t, ok)
	c.SetMetadata("foo", 1)
	v, ok := c.GetMetadata("foo")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestNewRunContext_DefaultID(t *testing.T) {
	t.Parallel()
	c := NewRunContext("", nil)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.RunID())
}

func TestContextPlumbing(t *testing.T) {
	t.Parallel()
	c := NewRunContext("x", nil)
	ctx := context.Background()
	ctx = WithRunContext(ctx, c)
	got := GetRunContext(ctx)
	assert.Equal(t, c, got)
	assert.Equal(t, "x", GetRunID(ctx))

	// Plain context has no run
	assert.Nil(t, GetRunContext(context.Background()))
	assert.Empty(t, GetRunID(context.Background()))
}

func TestNewRunID_Unique(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()
	assert.NotEqual(t, id1, id2)
}

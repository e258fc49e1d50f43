package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionError_WrapsSentinel(t *testing.T) {
	err := NewExecutionError("ExecutionByID", "exec-1", ErrExecutionNotFound)

	assert.True(t, IsExecutionNotFound(err))
	assert.True(t, errors.Is(err, ErrExecutionNotFound))
	assert.Contains(t, err.Error(), "exec-1")
	assert.Contains(t, err.Error(), "ExecutionByID")
}

func TestStepError_Message(t *testing.T) {
	err := NewStepError("UpdateStep", "exec-1", "build", ErrStepNotFound)

	assert.True(t, IsStepNotFound(err))
	assert.Contains(t, err.Error(), "step build")
	assert.Contains(t, err.Error(), "exec-1")
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(NewExecutionError("CreateExecution", "exec-1", ErrExecutionAlreadyExists)))
	assert.True(t, IsAlreadyExists(ErrStepAlreadyExists))
	assert.False(t, IsAlreadyExists(ErrExecutionNotFound))
}

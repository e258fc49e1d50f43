package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/protocol"
)

// MockTool is a mock implementation of protocol.Tool.
type MockTool struct {
	mock.Mock
}

func (m *MockTool) Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error) {
	args := m.Called(ctx, params)

	return args.Get(0).(jsontree.Value), args.Error(1)
}

// MockToolFactory is a mock implementation of protocol.ToolFactory.
type MockToolFactory struct {
	mock.Mock
}

func (m *MockToolFactory) ID() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockToolFactory) Name() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockToolFactory) Description() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockToolFactory) Schema() map[string]any {
	args := m.Called()

	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(map[string]any)
}

func (m *MockToolFactory) Create(config map[string]any) (protocol.Tool, error) {
	args := m.Called(config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(protocol.Tool), args.Error(1)
}

// MockDecisionGate is a mock implementation of protocol.DecisionGate.
type MockDecisionGate struct {
	mock.Mock
}

func (m *MockDecisionGate) Evaluate(ctx context.Context, signals map[string]any) (protocol.Decision, error) {
	args := m.Called(ctx, signals)

	return args.Get(0).(protocol.Decision), args.Error(1)
}

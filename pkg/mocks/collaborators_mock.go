package mocks

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMailer is a mock implementation of protocol.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email protocol.Email) error {
	args := m.Called(ctx, email)

	return args.Error(0)
}

// MockScriptRunner is a mock implementation of protocol.ScriptRunner interface.
type MockScriptRunner struct {
	mock.Mock
}

func (m *MockScriptRunner) Run(ctx context.Context, source string, input map[string]any, db protocol.DataStore) (any, error) {
	args := m.Called(ctx, source, input, db)

	return args.Get(0), args.Error(1)
}

// MockServiceInvoker is a mock implementation of protocol.ServiceInvoker interface.
type MockServiceInvoker struct {
	mock.Mock
}

func (m *MockServiceInvoker) Invoke(ctx context.Context, service, function string, args map[string]any) (any, error) {
	called := m.Called(ctx, service, function, args)

	return called.Get(0), called.Error(1)
}

// MockGenerator is a mock implementation of protocol.Generator interface.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req protocol.GenerationRequest) (*protocol.GenerationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.GenerationResult), args.Error(1)
}

// MockOccurrenceSource is a mock implementation of protocol.OccurrenceSource interface.
type MockOccurrenceSource struct {
	mock.Mock
}

func (m *MockOccurrenceSource) Start(ctx context.Context, callback protocol.OccurrenceCallback) error {
	args := m.Called(ctx, callback)

	return args.Error(0)
}

func (m *MockOccurrenceSource) Stop(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

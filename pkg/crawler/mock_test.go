package crawler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockResyncer struct {
	mock.Mock
	id uuid.UUID
}

func newMockResyncer() *mockResyncer {
	return &mockResyncer{id: uuid.New()}
}

func (m *mockResyncer) ID() uuid.UUID {
	return m.id
}

func (m *mockResyncer) Resync(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockResyncer) CurrentIndex() (uint32, error) {
	args := m.Called()
	return args.Get(0).(uint32), args.Error(1)
}

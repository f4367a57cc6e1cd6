package mocks

import (
	"context"

	"venue-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type CodeResolverMock struct {
	mock.Mock
}

func NewCodeResolverMock() *CodeResolverMock {
	return &CodeResolverMock{}
}

func (m *CodeResolverMock) Resolve(ctx context.Context, venueID uuid.UUID, code string) (*model.EntityRef, error) {
	args := m.Called(ctx, venueID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EntityRef), args.Error(1)
}

// Package mocks provides test doubles for the resolve store interfaces.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/eis-ingest/internal/model"
)

// MockStore is a mock type for the resolve.Store interface.
type MockStore struct {
	mock.Mock
}

// FindCustomerByTaxID provides a mock function with given fields: ctx, taxID
func (_m *MockStore) FindCustomerByTaxID(ctx context.Context, taxID string) (*model.Customer, error) {
	ret := _m.Called(ctx, taxID)

	if len(ret) == 0 {
		panic("no return value specified for FindCustomerByTaxID")
	}

	var r0 *model.Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Customer)
	}
	return r0, ret.Error(1)
}

// ContactExists provides a mock function with given fields: ctx, contact
func (_m *MockStore) ContactExists(ctx context.Context, contact string) (bool, error) {
	ret := _m.Called(ctx, contact)

	if len(ret) == 0 {
		panic("no return value specified for ContactExists")
	}
	return ret.Bool(0), ret.Error(1)
}

// InsertCustomer provides a mock function with given fields: ctx, c
func (_m *MockStore) InsertCustomer(ctx context.Context, c model.Customer) (int64, error) {
	ret := _m.Called(ctx, c)

	if len(ret) == 0 {
		panic("no return value specified for InsertCustomer")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// UpdateCustomer provides a mock function with given fields: ctx, id, patch
func (_m *MockStore) UpdateCustomer(ctx context.Context, id int64, patch model.CustomerPatch) error {
	ret := _m.Called(ctx, id, patch)

	if len(ret) == 0 {
		panic("no return value specified for UpdateCustomer")
	}
	return ret.Error(0)
}

// FindPlatformByName provides a mock function with given fields: ctx, name
func (_m *MockStore) FindPlatformByName(ctx context.Context, name string) (*model.TradingPlatform, error) {
	ret := _m.Called(ctx, name)

	if len(ret) == 0 {
		panic("no return value specified for FindPlatformByName")
	}

	var r0 *model.TradingPlatform
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.TradingPlatform)
	}
	return r0, ret.Error(1)
}

// InsertPlatform provides a mock function with given fields: ctx, p
func (_m *MockStore) InsertPlatform(ctx context.Context, p model.TradingPlatform) (int64, error) {
	ret := _m.Called(ctx, p)

	if len(ret) == 0 {
		panic("no return value specified for InsertPlatform")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// NewMockStore creates a new instance of MockStore. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

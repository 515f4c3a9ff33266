// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/azap/azap/internal/auth"
)

// MockCredentialRepository is a mock of auth.CredentialRepository.
type MockCredentialRepository struct {
	mock.Mock
}

// NewMockCredentialRepository creates a mock that asserts its expectations
// when the test ends.
func NewMockCredentialRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialRepository {
	m := &MockCredentialRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindCredential implements auth.CredentialRepository.
func (m *MockCredentialRepository) FindCredential(ctx context.Context, id int32) (*auth.Credential, error) {
	args := m.Called(ctx, id)
	var cred *auth.Credential
	if v := args.Get(0); v != nil {
		cred = v.(*auth.Credential)
	}
	return cred, args.Error(1)
}

// ExistsLocation implements auth.CredentialRepository.
func (m *MockCredentialRepository) ExistsLocation(ctx context.Context, id int32) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// ExistsDoctor implements auth.CredentialRepository.
func (m *MockCredentialRepository) ExistsDoctor(ctx context.Context, id int32) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// InsertCredential implements auth.CredentialRepository.
func (m *MockCredentialRepository) InsertCredential(ctx context.Context, secretHash string) (int32, error) {
	args := m.Called(ctx, secretHash)
	return args.Get(0).(int32), args.Error(1)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations when
// the test ends.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(secret string) string {
	args := m.Called(secret)
	return args.String(0)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(secret, stored string) bool {
	args := m.Called(secret, stored)
	return args.Bool(0)
}

var (
	_ auth.CredentialRepository = (*MockCredentialRepository)(nil)
	_ auth.PasswordHasher       = (*MockPasswordHasher)(nil)
)

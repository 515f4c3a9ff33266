// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth

import "context"

// Credential is a stored user credential.
type Credential struct {
	ID         int32
	SecretHash string
}

// CredentialRepository is the gateway to the user, location and doctor
// tables consulted during login and provisioning.
type CredentialRepository interface {
	// FindCredential returns the credential for id, or ErrNotFound.
	FindCredential(ctx context.Context, id int32) (*Credential, error)

	// ExistsLocation reports whether a location row has this id.
	ExistsLocation(ctx context.Context, id int32) (bool, error)

	// ExistsDoctor reports whether a doctor row has this id.
	ExistsDoctor(ctx context.Context, id int32) (bool, error)

	// InsertCredential stores a new credential and returns its id.
	InsertCredential(ctx context.Context, secretHash string) (int32, error)
}

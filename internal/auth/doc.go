// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package auth authenticates users and establishes their sessions.
//
// # Components
//
//   - ScryptHasher - memory-hard secret hashing in a self-describing format
//   - CredentialRepository - lookups against users, locations and doctors
//   - Service - login, current-session view, logout and provisioning
//
// Service operates on a Session capability passed per call. Login purges
// the session on any authentication failure and otherwise writes identity
// and roles together with a token rotation in one commit.
//
// # Results
//
// Service errors fall into two categories, told apart with Classify:
// OutcomeRejected for ErrInvalidCredentials and OutcomeFailed for
// everything else. Transports map those to their own status codes.
package auth

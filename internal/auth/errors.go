// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is the single authentication failure. It does
	// not say whether the id was unknown or the secret was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmptySecret is returned when provisioning a credential without a
	// secret.
	ErrEmptySecret = errors.New("secret cannot be empty")
)

// Outcome is the category of an authentication operation's result.
type Outcome int

// Outcomes.
const (
	OutcomeSuccess  Outcome = iota // operation completed
	OutcomeRejected                // authentication failure
	OutcomeFailed                  // infrastructure failure
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Classify maps an error returned by Service to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

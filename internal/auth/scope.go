// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth

// RoleContext records which role lookups matched at login.
type RoleContext struct {
	IsLocation bool
	IsDoctor   bool
}

// AuthenticatedView is what a populated session says about its holder.
type AuthenticatedView struct {
	Identity     int32
	LocationRole *int32
	DoctorRole   *int32
}

// Roles returns the role context of the view.
func (v AuthenticatedView) Roles() RoleContext {
	return RoleContext{
		IsLocation: v.LocationRole != nil,
		IsDoctor:   v.DoctorRole != nil,
	}
}

// Scope selects which location-scoped listing a view is entitled to.
type Scope int

// Scopes.
const (
	// ScopeNone: no location role, nothing location-scoped is visible.
	ScopeNone Scope = iota
	// ScopeLocation: the whole listing for the location.
	ScopeLocation
	// ScopeDoctor: the listing for the doctor at the location.
	ScopeDoctor
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeLocation:
		return "location"
	case ScopeDoctor:
		return "doctor"
	default:
		return "none"
	}
}

// ScopeFor returns the listing scope of a view. A doctor role without a
// location role grants nothing.
func ScopeFor(v AuthenticatedView) Scope {
	switch {
	case v.LocationRole == nil:
		return ScopeNone
	case v.DoctorRole == nil:
		return ScopeLocation
	default:
		return ScopeDoctor
	}
}

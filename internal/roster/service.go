// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package roster

import (
	"context"

	"github.com/samber/oops"

	"github.com/azap/azap/internal/auth"
)

// Listing is what a session may see.
type Listing struct {
	Doctors []Doctor
	Tickets []Ticket
}

// Service scopes roster reads by a session's roles.
type Service struct {
	repo Repository
}

// NewService creates a Service.
func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("ROSTER_INVALID_CONFIG").Errorf("roster repository is required")
	}
	return &Service{repo: repo}, nil
}

// ForView returns the listing visible to v. Sessions without a location
// see nothing. Location sessions see all doctors and tickets there; doctor
// sessions see all doctors but only their own tickets.
func (s *Service) ForView(ctx context.Context, v auth.AuthenticatedView) (Listing, error) {
	scope := auth.ScopeFor(v)
	if scope == auth.ScopeNone {
		return Listing{Doctors: []Doctor{}, Tickets: []Ticket{}}, nil
	}

	location := *v.LocationRole
	doctors, err := s.repo.DoctorsAt(ctx, location)
	if err != nil {
		return Listing{}, oops.Code("ROSTER_LIST_FAILED").
			With("scope", scope.String()).
			With("location_id", location).
			Wrap(err)
	}

	var tickets []Ticket
	if scope == auth.ScopeDoctor {
		tickets, err = s.repo.TicketsFor(ctx, location, *v.DoctorRole)
	} else {
		tickets, err = s.repo.TicketsAt(ctx, location)
	}
	if err != nil {
		return Listing{}, oops.Code("ROSTER_LIST_FAILED").
			With("scope", scope.String()).
			With("location_id", location).
			Wrap(err)
	}

	return Listing{Doctors: doctors, Tickets: tickets}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package roster lists the doctors and tickets visible to an authenticated
// session.
package roster

import (
	"context"
	"time"
)

// Doctor works at one location.
type Doctor struct {
	ID         int32  `json:"id"`
	LocationID int32  `json:"locationId"`
	Name       string `json:"name"`
}

// Ticket is a queue entry at a location, optionally assigned to a doctor.
type Ticket struct {
	ID         int32     `json:"id"`
	LocationID int32     `json:"locationId"`
	DoctorID   *int32    `json:"doctorId"`
	Code       string    `json:"code"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository reads roster rows.
type Repository interface {
	// DoctorsAt returns the doctors working at a location.
	DoctorsAt(ctx context.Context, locationID int32) ([]Doctor, error)

	// TicketsAt returns every ticket at a location.
	TicketsAt(ctx context.Context, locationID int32) ([]Ticket, error)

	// TicketsFor returns the tickets at a location assigned to a doctor.
	TicketsFor(ctx context.Context, locationID, doctorID int32) ([]Ticket, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package postgres implements roster.Repository on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/azap/azap/internal/roster"
)

type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RosterRepository implements roster.Repository.
type RosterRepository struct {
	pool poolIface
}

// NewRosterRepository creates a RosterRepository.
func NewRosterRepository(pool poolIface) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// DoctorsAt implements roster.Repository.
func (r *RosterRepository) DoctorsAt(ctx context.Context, locationID int32) ([]roster.Doctor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, location_id, name FROM doctors WHERE location_id = $1 ORDER BY id`, locationID)
	if err != nil {
		return nil, oops.With("operation", "query doctors").With("location_id", locationID).Wrap(err)
	}
	defer rows.Close()

	doctors := make([]roster.Doctor, 0)
	for rows.Next() {
		var d roster.Doctor
		if err := rows.Scan(&d.ID, &d.LocationID, &d.Name); err != nil {
			return nil, oops.With("operation", "scan doctor").Wrap(err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate doctors").Wrap(err)
	}
	return doctors, nil
}

const selectTicketsSQL = `SELECT id, location_id, doctor_id, code, created_at FROM tickets`

// TicketsAt implements roster.Repository.
func (r *RosterRepository) TicketsAt(ctx context.Context, locationID int32) ([]roster.Ticket, error) {
	return r.tickets(ctx, selectTicketsSQL+` WHERE location_id = $1 ORDER BY id`, locationID)
}

// TicketsFor implements roster.Repository.
func (r *RosterRepository) TicketsFor(ctx context.Context, locationID, doctorID int32) ([]roster.Ticket, error) {
	return r.tickets(ctx, selectTicketsSQL+` WHERE location_id = $1 AND doctor_id = $2 ORDER BY id`, locationID, doctorID)
}

func (r *RosterRepository) tickets(ctx context.Context, query string, args ...any) ([]roster.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.With("operation", "query tickets").Wrap(err)
	}
	defer rows.Close()

	tickets := make([]roster.Ticket, 0)
	for rows.Next() {
		var t roster.Ticket
		if err := rows.Scan(&t.ID, &t.LocationID, &t.DoctorID, &t.Code, &t.CreatedAt); err != nil {
			return nil, oops.With("operation", "scan ticket").Wrap(err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate tickets").Wrap(err)
	}
	return tickets, nil
}

// Compile-time interface check.
var _ roster.Repository = (*RosterRepository)(nil)

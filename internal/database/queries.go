package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides prefix-aware database operations.
type Queries struct {
	db     DBTX
	prefix string
}

// NewQueries creates a new Queries instance with the given table prefix.
func NewQueries(db DBTX, prefix string) *Queries {
	return &Queries{
		db:     db,
		prefix: prefix,
	}
}

var (
	insertUserSQL = `
INSERT INTO %s_users (email, has_bina)
VALUES ($1, FALSE)
ON CONFLICT (email) DO NOTHING;`

	getUserSQL = `
SELECT email, has_bina, created_at
FROM %s_users
WHERE email = $1;`

	setHasBinaSQL = `
UPDATE %s_users
SET has_bina = $2
WHERE email = $1;`

	deleteUserSQL = `
DELETE FROM %s_users
WHERE email = $1;`

	deleteAllUsersSQL = `
DELETE FROM %s_users;`

	listStationsSQL = `
SELECT name, addr, updated_at
FROM %s_stations
WHERE name LIKE $1
ORDER BY name ASC;`

	setStationSQL = `
INSERT INTO %s_stations (name, addr, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (name)
DO UPDATE SET
    addr = EXCLUDED.addr,
    updated_at = EXCLUDED.updated_at;`

	deleteStationSQL = `
DELETE FROM %s_stations
WHERE name = $1;`
)

// InsertUser creates a user and reports whether a row was inserted. An
// existing email is left untouched.
func (q *Queries) InsertUser(ctx context.Context, email string) (bool, error) {
	var query = fmt.Sprintf(insertUserSQL, q.prefix)
	res, err := q.db.ExecContext(ctx, query, email)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	return n == 1, nil
}

// GetUser retrieves a user by email. It returns nil when none exists.
func (q *Queries) GetUser(ctx context.Context, email string) (*UserRecord, error) {
	var (
		query = fmt.Sprintf(getUserSQL, q.prefix)
		user  UserRecord
		err   = q.db.QueryRowContext(ctx, query, email).Scan(&user.Email, &user.HasBina, &user.CreatedAt)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SetHasBina updates the user's rental flag and reports whether the user
// exists.
func (q *Queries) SetHasBina(ctx context.Context, email string, hasBina bool) (bool, error) {
	var query = fmt.Sprintf(setHasBinaSQL, q.prefix)
	res, err := q.db.ExecContext(ctx, query, email, hasBina)
	if err != nil {
		return false, fmt.Errorf("failed to set has_bina: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set has_bina: %w", err)
	}
	return n == 1, nil
}

// DeleteUser removes a user.
func (q *Queries) DeleteUser(ctx context.Context, email string) error {
	var query = fmt.Sprintf(deleteUserSQL, q.prefix)
	if _, err := q.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// DeleteAllUsers removes every user.
func (q *Queries) DeleteAllUsers(ctx context.Context) error {
	var query = fmt.Sprintf(deleteAllUsersSQL, q.prefix)
	if _, err := q.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to delete users: %w", err)
	}
	return nil
}

// ListStations returns the stations whose name matches a LIKE pattern,
// ordered by name.
func (q *Queries) ListStations(ctx context.Context, pattern string) ([]*StationRecord, error) {
	var (
		query     = fmt.Sprintf(listStationsSQL, q.prefix)
		rows, err = q.db.QueryContext(ctx, query, pattern)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var stations []*StationRecord
	for rows.Next() {
		var station StationRecord
		if err := rows.Scan(&station.Name, &station.Addr, &station.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, &station)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stations, nil
}

// SetStation inserts or updates a station's address.
func (q *Queries) SetStation(ctx context.Context, name, addr string) error {
	var query = fmt.Sprintf(setStationSQL, q.prefix)
	if _, err := q.db.ExecContext(ctx, query, name, addr); err != nil {
		return fmt.Errorf("failed to set station: %w", err)
	}
	return nil
}

// DeleteStation removes a station.
func (q *Queries) DeleteStation(ctx context.Context, name string) error {
	var query = fmt.Sprintf(deleteStationSQL, q.prefix)
	if _, err := q.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	return nil
}

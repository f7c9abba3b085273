package database

import "time"

// UserRecord represents a user row.
type UserRecord struct {
	Email     string
	HasBina   bool
	CreatedAt time.Time
}

// StationRecord represents a published station row.
type StationRecord struct {
	Name      string
	Addr      string
	UpdatedAt time.Time
}

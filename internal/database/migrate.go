package database

import (
	"database/sql"
	"fmt"
)

var (
	createUsersTableSQL = `
CREATE TABLE IF NOT EXISTS %s_users (
    email         VARCHAR       NOT NULL,
    has_bina      BOOLEAN       NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW(),

    PRIMARY KEY (email)
);`

	createStationsTableSQL = `
CREATE TABLE IF NOT EXISTS %s_stations (
    name          VARCHAR       NOT NULL,
    addr          VARCHAR       NOT NULL,
    updated_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW(),

    PRIMARY KEY (name)
);`
)

// Migrate creates the users and stations tables.
func Migrate(db *sql.DB, prefix string) error {
	if err := createUsersTable(db, prefix); err != nil {
		return err
	}

	if err := createStationsTable(db, prefix); err != nil {
		return err
	}

	return nil
}

func createUsersTable(db *sql.DB, prefix string) error {
	var query = fmt.Sprintf(createUsersTableSQL, prefix)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createStationsTable(db *sql.DB, prefix string) error {
	var query = fmt.Sprintf(createStationsTableSQL, prefix)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create stations table: %w", err)
	}
	return nil
}

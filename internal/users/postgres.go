package users

import (
	"context"
	"fmt"

	"binas/internal/database"
)

// PostgresStore keeps users in the <prefix>_users table.
type PostgresStore struct {
	queries *database.Queries
}

// NewPostgresStore creates a store over db. Tables must already exist; see
// database.Migrate.
func NewPostgresStore(db database.DBTX, prefix string) *PostgresStore {
	return &PostgresStore{queries: database.NewQueries(db, prefix)}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Create(ctx context.Context, email string) (User, error) {
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}

	inserted, err := s.queries.InsertUser(ctx, email)
	if err != nil {
		return User{}, err
	}
	if !inserted {
		return User{}, fmt.Errorf("%w: %s", ErrUserAlreadyExists, email)
	}
	return User{Email: email}, nil
}

func (s *PostgresStore) Get(ctx context.Context, email string) (User, error) {
	record, err := s.queries.GetUser(ctx, email)
	if err != nil {
		return User{}, err
	}
	if record == nil {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return User{Email: record.Email, HasBina: record.HasBina}, nil
}

func (s *PostgresStore) SetHasBina(ctx context.Context, email string, hasBina bool) error {
	found, err := s.queries.SetHasBina(ctx, email, hasBina)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, email string) error {
	return s.queries.DeleteUser(ctx, email)
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	return s.queries.DeleteAllUsers(ctx)
}

package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrUserNotFound is returned for an unknown email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists is returned when registering a taken email.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidEmail is returned for a malformed email.
	ErrInvalidEmail = errors.New("invalid email")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9]+(\.[a-zA-Z0-9]+)*@[a-zA-Z0-9]+(\.[a-zA-Z0-9]+)*$`)

// User is a binas account.
type User struct {
	Email   string `json:"email"`
	HasBina bool   `json:"has_bina"`
}

// Store persists users. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, email string) (User, error)
	Get(ctx context.Context, email string) (User, error)
	SetHasBina(ctx context.Context, email string, hasBina bool) error
	Delete(ctx context.Context, email string) error
	Reset(ctx context.Context) error
}

// ValidateEmail reports ErrInvalidEmail unless email is dot-separated
// alphanumeric words on both sides of a single @.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

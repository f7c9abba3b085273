package binas

import "errors"

var (
	// ErrUserAlreadyHasBina is returned when renting while holding a bina.
	ErrUserAlreadyHasBina = errors.New("user already has a bina")
	// ErrUserHasNoBina is returned when returning without holding a bina.
	ErrUserHasNoBina = errors.New("user has no bina")
	// ErrInsufficientCredits is returned when the balance cannot pay a rent.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrBadInit is returned for a negative initial credit.
	ErrBadInit = errors.New("bad init")
)

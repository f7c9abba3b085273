// Package binas rents and returns binas. A rent or return touches three
// things in order: the station's dock, the user's replicated credit balance
// and the user's local record. Every step for one user runs under that
// user's lock, so a user never has two rentals in flight.
//
// The package also exposes the manager over gRPC as the binas.Binas service.
package binas

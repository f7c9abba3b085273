// Package users stores binas accounts. An account only records whether the
// user holds a bina; credit balances live in the replicated register.
package users

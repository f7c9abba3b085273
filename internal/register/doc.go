// Package register implements a quorum-replicated balance register.
// Reads and writes fan out to every configured replica and complete once a
// majority has answered; conflicting answers are resolved by the highest tag.
//
// Writes derive their tag from a preceding quorum read, so two writers for the
// same user must never overlap. The Register serializes its own callers per
// user; writers living in other processes are the caller's responsibility.
package register

// Package station provides the station replica: a bina dock with a fixed
// capacity that also keeps one copy of every user's tagged balance. It ships
// the gRPC service exposing a station, the client used to call one, and the
// Endpoint interface the rest of the system programs against.
package station

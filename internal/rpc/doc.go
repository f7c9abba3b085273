// Package rpc holds the gRPC plumbing shared by the station and binas
// services: a JSON codec registered under the "json" content subtype,
// helpers to describe unary services without generated stubs, and a table
// that carries sentinel errors across the wire as status codes.
package rpc

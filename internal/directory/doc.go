// Package directory maps logical station names to network addresses. Names
// are looked up by SQL LIKE pattern, so "A46_Station%" lists every station
// of a deployment.
package directory

// Package store provides the user store backends: an in-memory
// implementation for tests and single-process wiring, and a PostgreSQL
// implementation for durable deployments. Both enforce tenant-scoped email
// uniqueness and scope every lookup to one tenant.
//
// Services declare the interface they need; this package only ships
// implementations.
package store

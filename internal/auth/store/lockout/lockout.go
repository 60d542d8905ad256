// Package lockout tracks failed login attempts and temporary account locks.
// Failures within a sliding window count toward a threshold; reaching it
// locks the key for a fixed duration. Counters and locks decay on their own,
// so there is no cleanup job.
//
// The store answers facts (locked or not); the login flow decides what a
// lock means and what to do when the store itself is unreachable.
package lockout

import (
	"time"

	id "cradle/pkg/domain"
)

// Policy fixes the threshold and decay windows for one store instance.
type Policy struct {
	// Threshold is the failure count that triggers a lock.
	Threshold int
	// Window bounds how long failures accumulate before the counter decays.
	Window time.Duration
	// LockDuration is how long a triggered lock holds.
	LockDuration time.Duration
}

// Key builds the lockout identifier for a login attempt. Scoping by tenant
// keeps attempts against the same address in different tenants independent.
func Key(tenantID id.TenantID, email string) string {
	return tenantID.String() + "|" + email
}

// Package license implements the per-host Server State: the accumulated,
// per-user license usage model described in spec §3 and §4.3.
package license

import "time"

// DefaultAllowedUsage is the default allowed-usage budget for a newly
// observed user (10 hours), per spec §3.
const DefaultAllowedUsage = 10 * time.Hour

// User is a monitored user's accumulated state on a single server. Uids
// are always stored canonicalized (upper case); use clock.CanonicalUID at
// every boundary before looking one up.
type User struct {
	UID  string
	Name string
	Mail string

	Usage         time.Duration // accumulated active usage
	LastUpdate    time.Time     // last dump timestamp this user was seen in
	Increment     time.Duration // increment assigned on the most recent dump
	Machine       string
	Host          string
	Warned        bool
	Banned        bool
	BannedTime    time.Duration // accumulated time spent banned
	AllowedUsage  time.Duration // allowed-usage budget, default 10h
}

// NewUser creates a freshly observed monitored user.
func NewUser(uid, machine, host string) *User {
	return &User{
		UID:          uid,
		Machine:      machine,
		Host:         host,
		AllowedUsage: DefaultAllowedUsage,
	}
}

// TotalUsage is the sum of active usage and accumulated banned time,
// mirroring TimeMonitoredUser.getTotalUsageTime in the original.
func (u *User) TotalUsage() time.Duration {
	return u.Usage + u.BannedTime
}

// SetBanned sets the ban flag. Clearing a ban also clears the warn flag,
// per the data model invariant in spec §3.
func (u *User) SetBanned(banned bool) {
	u.Banned = banned
	if !banned {
		u.Warned = false
	}
}

// GrantUsage extends the user's allowed-usage budget, preserving the
// original TimeMonitoredUser.grantUsageTime capability.
func (u *User) GrantUsage(extra time.Duration) {
	u.AllowedUsage += extra
}

// RemainingUsage returns how much budget the user has left before hitting
// AllowedUsage; it can be negative if the user is already over budget.
func (u *User) RemainingUsage() time.Duration {
	return u.AllowedUsage - u.TotalUsage()
}

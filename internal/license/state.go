package license

import (
	"strings"
	"sync"
	"time"

	"github.com/netixx/flexsentry/internal/clock"
)

// State is the per-host license usage state: issued/used counts plus the
// map of every user observed since the last reset. A State is owned
// exclusively by its Host Monitor; readers must go through Fleet Manager
// / service-registry callbacks rather than touching it directly from
// another goroutine, except via the accessor methods below which take the
// internal lock.
type State struct {
	mu sync.RWMutex

	Host string

	used     int
	total    int
	lastDump time.Time
	hasDump  bool

	users map[string]*User
}

// NewState creates an empty Server State for the given host.
func NewState(host string) *State {
	return &State{
		Host:  strings.ToUpper(host),
		users: make(map[string]*User),
	}
}

// Used returns the used-licenses count from the most recent dump.
func (s *State) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Total returns the total-licenses count from the most recent dump.
func (s *State) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// SetCounts records the issued/in-use counts from a dump's feature totals.
func (s *State) SetCounts(issued, inUse int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = issued
	s.used = inUse
}

// LastDump returns the timestamp of the most recent successfully applied
// dump, and whether one has ever been applied.
func (s *State) LastDump() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDump, s.hasDump
}

// UserCount returns the number of users currently tracked.
func (s *State) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// User looks up a user by (any-case) uid.
func (s *State) User(uid string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[clock.CanonicalUID(uid)]
	return u, ok
}

// Users returns a snapshot slice of every tracked user.
func (s *State) Users() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// ResetUserUsage removes a user's accumulated usage entirely, per the
// resetUserUsage service contract invoked by the ban strategy on unban.
func (s *State) ResetUserUsage(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, clock.CanonicalUID(uid))
}

// GrantUsage extends a known user's allowed-usage budget.
func (s *State) GrantUsage(uid string, extra time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[clock.CanonicalUID(uid)]; ok {
		u.GrantUsage(extra)
	}
}

// AddUsage applies one usage line from a dump to this server's state,
// implementing the accumulation algorithm of spec §4.3: the only
// non-obvious algorithm in the system. dumpTs is the dump's own
// timestamp; loginTs is the user's login time read off that same line.
func (s *State) AddUsage(dumpTs time.Time, uid string, loginTs time.Time, machine, host string) {
	uid = clock.CanonicalUID(uid)

	s.mu.Lock()
	defer s.mu.Unlock()

	prevDump, hadPrevDump := s.lastDump, s.hasDump

	u, ok := s.users[uid]
	var increment, added time.Duration
	if !ok {
		u = NewUser(uid, machine, host)
		s.users[uid] = u
		increment = dumpTs.Sub(loginTs)
		added = increment
	} else {
		if hadPrevDump && u.LastUpdate.Before(prevDump) {
			// user was absent from the previous dump: their session is
			// treated as starting now.
			u.LastUpdate = loginTs
		}
		increment = dumpTs.Sub(u.LastUpdate)
		added = increment
		if u.LastUpdate.Equal(dumpTs) {
			// multiple concurrent seats for this user on this host in
			// this dump: count another interval in addition to what was
			// already added this cycle.
			var delta time.Duration
			if !hadPrevDump {
				delta = dumpTs.Sub(loginTs)
			} else {
				delta = dumpTs.Sub(prevDump)
			}
			increment = u.Increment + delta
			added = delta
		}
		u.Machine = machine
		u.Host = host
	}

	u.Usage += added
	u.Increment = increment
	u.LastUpdate = dumpTs
}

// CommitDump marks dumpTs as the last successfully applied dump for this
// host. Must be called once, after every AddUsage call for that dump has
// been applied.
func (s *State) CommitDump(dumpTs time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDump = dumpTs
	s.hasDump = true
}

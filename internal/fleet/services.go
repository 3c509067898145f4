package fleet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/netixx/flexsentry/internal/clock"
	"github.com/netixx/flexsentry/internal/license"
	"github.com/netixx/flexsentry/internal/metrics"
	"github.com/netixx/flexsentry/internal/notify"
	"github.com/netixx/flexsentry/internal/strategy"
	"github.com/netixx/flexsentry/internal/xlog"
)

// registerServices wires every capability the Strategy Engine's concrete
// strategies require (spec §9's named-capability registry) against this
// Manager's Host Monitors, mailer, and option file.
func (m *Manager) registerServices() {
	reg := m.registry
	_ = reg.Register(strategy.ServiceGetFreePercentage, func(args ...any) any {
		return m.getFreePercentage()
	})
	_ = reg.Register(strategy.ServiceGetTotalNumberOfUsers, func(args ...any) any {
		return m.getTotalNumberOfUsers()
	})
	_ = reg.Register(strategy.ServiceGetUserToBan, func(args ...any) any {
		return m.getUserToBan()
	})
	_ = reg.Register(strategy.ServiceGetUserBeforeMaxUsage, func(args ...any) any {
		delay, _ := args[0].(time.Duration)
		return m.getUserBeforeMaxUsage(delay)
	})
	_ = reg.Register(strategy.ServiceResetUserUsage, func(args ...any) any {
		u, _ := args[0].(*license.User)
		when, _ := args[1].(time.Time)
		m.resetUserUsage(u, when)
		return nil
	})
	_ = reg.Register(strategy.ServiceNotifyEvent, func(args ...any) any {
		users, _ := args[0].([]*license.User)
		event, _ := args[1].(strategy.UserEvent)
		m.notifyEvent(context.Background(), users, event)
		return nil
	})
	_ = reg.Register(strategy.ServiceWriteFlexOptFile, func(args ...any) any {
		content := ""
		if len(args) > 0 {
			content, _ = args[0].(string)
		}
		if err := m.WriteFlexOptFile(context.Background(), content); err != nil {
			xlog.Component("fleet").Warn().Err(err).Msg("failed to write option file")
		}
		return nil
	})
	_ = reg.Register(strategy.ServiceScheduleReloadOnce, func(args ...any) any {
		return m.scheduleServerReloadOnce()
	})
}

// allUsers returns every user tracked across every monitored host.
func (m *Manager) allUsers() []*license.User {
	var out []*license.User
	for _, mon := range m.monitors {
		out = append(out, mon.State().Users()...)
	}
	return out
}

// getFreePercentage is the getFreePercentage service: the fraction of
// fleet-wide licenses currently free, per the glossary definition
// `(total - used) / total`.
func (m *Manager) getFreePercentage() float64 {
	var total, used int
	for _, mon := range m.monitors {
		total += mon.State().Total()
		used += mon.State().Used()
	}
	if total == 0 {
		return 1
	}
	return float64(total-used) / float64(total)
}

// getTotalNumberOfUsers is the getTotalNumberOfUsers service: the count of
// users tracked across the whole fleet.
func (m *Manager) getTotalNumberOfUsers() int {
	return len(m.allUsers())
}

// getUserToBan is the getUserToBan service: every not-yet-banned user
// across the fleet, longest accumulated usage first, so the ban strategy
// can take however many of the front of the slice it needs.
func (m *Manager) getUserToBan() []*license.User {
	var candidates []*license.User
	for _, u := range m.allUsers() {
		if !u.Banned {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalUsage() > candidates[j].TotalUsage()
	})
	return candidates
}

// getUserBeforeMaxUsage is the getUserBeforeMaxUsage service: every
// not-yet-warned user whose remaining budget is at or below delay.
func (m *Manager) getUserBeforeMaxUsage(delay time.Duration) []*license.User {
	var out []*license.User
	for _, u := range m.allUsers() {
		if !u.Warned && u.RemainingUsage() <= delay {
			out = append(out, u)
		}
	}
	return out
}

// resetUserUsage is the resetUserUsage service: it unbans uid on whichever
// host tracks it and clears its accumulated usage, per spec §4.7's unban
// path.
func (m *Manager) resetUserUsage(u *license.User, when time.Time) {
	if u == nil {
		return
	}
	uid := clock.CanonicalUID(u.UID)
	for _, mon := range m.monitors {
		if _, ok := mon.State().User(uid); ok {
			mon.State().ResetUserUsage(uid)
		}
	}
	m.mu.Lock()
	delete(m.bannedSet, uid)
	metrics.UsersBanned.Set(float64(len(m.bannedSet)))
	m.mu.Unlock()
}

// notifyEvent is the notifyEvent service: it flips each user's Banned or
// Warned flag to match event, then enqueues one mail per user via the
// mailer, per spec §4.9.
func (m *Manager) notifyEvent(ctx context.Context, users []*license.User, event strategy.UserEvent) {
	for _, u := range users {
		metrics.NotificationsTotal.WithLabelValues(string(event)).Inc()

		switch event {
		case strategy.EventBan:
			u.SetBanned(true)
			m.mu.Lock()
			m.bannedSet[clock.CanonicalUID(u.UID)] = true
			metrics.UsersBanned.Set(float64(len(m.bannedSet)))
			m.mu.Unlock()
		case strategy.EventUnban:
			u.SetBanned(false)
			m.mu.Lock()
			delete(m.bannedSet, clock.CanonicalUID(u.UID))
			metrics.UsersBanned.Set(float64(len(m.bannedSet)))
			m.mu.Unlock()
		case strategy.EventWarn:
			u.Warned = true
		}

		if m.mailer == nil {
			continue
		}
		to := u.Mail
		if to == "" {
			if _, mail, ok := m.registry.ResolveUser(u.UID); ok && mail != "" {
				to = mail
			}
		}
		if to == "" {
			continue
		}
		m.mailer.Enqueue(notify.NewMessage([]string{to}, subjectFor(event), bodyFor(event, u)))
	}
}

func subjectFor(event strategy.UserEvent) string {
	switch event {
	case strategy.EventBan:
		return "License access suspended"
	case strategy.EventUnban:
		return "License access restored"
	case strategy.EventWarn:
		return "License usage limit approaching"
	default:
		return "License notification"
	}
}

func bodyFor(event strategy.UserEvent, u *license.User) string {
	switch event {
	case strategy.EventBan:
		return fmt.Sprintf("User %s has been banned from the license server after exceeding the allowed usage time.", u.UID)
	case strategy.EventUnban:
		return fmt.Sprintf("User %s's license access has been restored.", u.UID)
	case strategy.EventWarn:
		return fmt.Sprintf("User %s is approaching the allowed usage time and may soon be banned.", u.UID)
	default:
		return ""
	}
}

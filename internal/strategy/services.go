package strategy

import (
	"time"

	"github.com/netixx/flexsentry/internal/license"
)

// UserEvent is a notification kind destined to a user.
type UserEvent string

// The three user events strategies may fire, per spec §3.
const (
	EventWarn  UserEvent = "warn"
	EventBan   UserEvent = "ban"
	EventUnban UserEvent = "unban"
)

// Required service names, shared by both concrete strategies (spec §4.7,
// §4.8) and validated against the registry at AddStrategy time.
const (
	ServiceResetUserUsage         = "resetUserUsage"
	ServiceGetUserToBan           = "getUserToBan"
	ServiceWriteFlexOptFile       = "writeFlexOptFile"
	ServiceNotifyEvent            = "notifyEvent"
	ServiceScheduleReloadOnce     = "scheduleServerReloadOnce"
	ServiceGetFreePercentage      = "getFreePercentage"
	ServiceGetTotalNumberOfUsers  = "getTotalNumberOfUsers"
	ServiceGetUserBeforeMaxUsage  = "getUserBeforeMaxUsage"
)

// The helpers below call a named service through the registry and type-
// assert its result, keeping every strategy implementation free of the
// untyped registry.Service.Call signature.

func callResetUserUsage(e *Engine, u *license.User, when time.Time) {
	s, err := e.Registry().Get(ServiceResetUserUsage)
	if err != nil {
		return
	}
	s.Call(u, when)
}

func callGetUserToBan(e *Engine) []*license.User {
	s, err := e.Registry().Get(ServiceGetUserToBan)
	if err != nil {
		return nil
	}
	v, _ := s.Call().([]*license.User)
	return v
}

func callWriteFlexOptFile(e *Engine, content string) {
	s, err := e.Registry().Get(ServiceWriteFlexOptFile)
	if err != nil {
		return
	}
	if content == "" {
		s.Call()
		return
	}
	s.Call(content)
}

func callNotifyEvent(e *Engine, users []*license.User, event UserEvent) {
	s, err := e.Registry().Get(ServiceNotifyEvent)
	if err != nil {
		return
	}
	s.Call(users, event)
}

func callScheduleServerReloadOnce(e *Engine) bool {
	s, err := e.Registry().Get(ServiceScheduleReloadOnce)
	if err != nil {
		return false
	}
	v, _ := s.Call().(bool)
	return v
}

func callGetFreePercentage(e *Engine) float64 {
	s, err := e.Registry().Get(ServiceGetFreePercentage)
	if err != nil {
		return 0
	}
	v, _ := s.Call().(float64)
	return v
}

func callGetTotalNumberOfUsers(e *Engine) int {
	s, err := e.Registry().Get(ServiceGetTotalNumberOfUsers)
	if err != nil {
		return 0
	}
	v, _ := s.Call().(int)
	return v
}

func callGetUserBeforeMaxUsage(e *Engine, delay time.Duration) []*license.User {
	s, err := e.Registry().Get(ServiceGetUserBeforeMaxUsage)
	if err != nil {
		return nil
	}
	v, _ := s.Call(delay).([]*license.User)
	return v
}

// Package temporal derives time-of-day and session features used as ranking
// signals. The context is ephemeral: recomputed when stale, never persisted.
package temporal

import (
	"sync"
	"time"
)

// sessionGap is the maximum silence between interactions before a new
// session starts.
const sessionGap = 30 * time.Minute

// DefaultUpdateInterval is how long a computed context stays fresh.
const DefaultUpdateInterval = 15 * time.Minute

// Activity is the rolling record of recent interactions.
type Activity struct {
	LastInteractionType string    `json:"lastInteractionType,omitempty"`
	LastInteractionAt   time.Time `json:"lastInteractionAt"`
	ActiveSession       bool      `json:"activeSession"`
	SessionDuration     time.Duration `json:"sessionDuration"`
}

// Context carries the calendar fields and derived flags for one instant.
type Context struct {
	Timestamp      time.Time    `json:"timestamp"`
	Year           int          `json:"year"`
	Month          time.Month   `json:"month"`
	Day            int          `json:"day"`
	Hour           int          `json:"hour"`
	Weekday        time.Weekday `json:"weekday"`
	IsWeekend      bool         `json:"isWeekend"`
	IsWorkHours    bool         `json:"isWorkHours"`
	TimeOfDay      string       `json:"timeOfDay"`
	Season         string       `json:"season"`
	RecentActivity Activity     `json:"recentActivity"`
}

// Manager computes and caches the current temporal context.
type Manager struct {
	mu             sync.Mutex
	updateInterval time.Duration
	now            func() time.Time

	current    *Context
	computedAt time.Time

	sessionStart    time.Time
	lastInteraction time.Time
	lastType        string
}

func NewManager(updateInterval time.Duration) *Manager {
	if updateInterval <= 0 {
		updateInterval = DefaultUpdateInterval
	}
	return &Manager{
		updateInterval: updateInterval,
		now:            time.Now,
	}
}

// Current returns the cached context, recomputing it when older than the
// update interval.
func (m *Manager) Current() Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.current == nil || now.Sub(m.computedAt) >= m.updateInterval {
		ctx := m.compute(now)
		m.current = &ctx
		m.computedAt = now
	}
	return *m.current
}

// RecordInteraction updates session state. Interactions more than 30 minutes
// apart start a fresh session with duration reset to zero.
func (m *Manager) RecordInteraction(interactionType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastInteraction.IsZero() || now.Sub(m.lastInteraction) > sessionGap {
		m.sessionStart = now
	}
	m.lastInteraction = now
	m.lastType = interactionType

	// Session state changed; force a recompute on the next read.
	m.current = nil
}

func (m *Manager) compute(now time.Time) Context {
	wd := now.Weekday()
	hour := now.Hour()

	active := !m.lastInteraction.IsZero() && now.Sub(m.lastInteraction) <= sessionGap
	var duration time.Duration
	if active {
		duration = now.Sub(m.sessionStart)
	}

	return Context{
		Timestamp:   now,
		Year:        now.Year(),
		Month:       now.Month(),
		Day:         now.Day(),
		Hour:        hour,
		Weekday:     wd,
		IsWeekend:   wd == time.Saturday || wd == time.Sunday,
		IsWorkHours: wd >= time.Monday && wd <= time.Friday && hour >= 9 && hour < 17,
		TimeOfDay:   timeOfDay(hour),
		Season:      season(now.Month()),
		RecentActivity: Activity{
			LastInteractionType: m.lastType,
			LastInteractionAt:   m.lastInteraction,
			ActiveSession:       active,
			SessionDuration:     duration,
		},
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// season uses the Northern-hemisphere calendar convention.
func season(month time.Month) string {
	switch {
	case month >= time.March && month <= time.May:
		return "spring"
	case month >= time.June && month <= time.August:
		return "summer"
	case month >= time.September && month <= time.November:
		return "fall"
	default:
		return "winter"
	}
}

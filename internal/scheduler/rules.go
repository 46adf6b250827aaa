package scheduler

import (
	"fmt"
	"sync"
	"time"

	"famledger/internal/core"
)

// ReminderRule decides when a deadline reminder may fire.
type ReminderRule interface {
	// Window returns the half-open interval [from, to) in which a reminder
	// for a task due at due may fire.
	Window(due time.Time) (from, to time.Time)
}

// LeadRule fires from Lead before the deadline until the deadline.
type LeadRule struct {
	Lead time.Duration
}

func (r LeadRule) Window(due time.Time) (time.Time, time.Time) {
	return due.Add(-r.Lead), due
}

var (
	rulesMu sync.RWMutex
	rules   = map[core.ReminderLead]ReminderRule{}
)

func init() {
	for _, lead := range []core.ReminderLead{
		core.Reminder0m, core.Reminder1m, core.Reminder5m, core.Reminder15m,
		core.Reminder30m, core.Reminder45m, core.Reminder1h, core.Reminder2h, core.Reminder1d,
	} {
		offset, _ := lead.Offset()
		rules[lead] = LeadRule{Lead: offset}
	}
}

// GetReminderRule returns the rule for lead. "none" and unknown leads have no rule.
func GetReminderRule(lead core.ReminderLead) (ReminderRule, error) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	rule, ok := rules[lead]
	if !ok {
		return nil, fmt.Errorf("no reminder rule for lead %q", lead)
	}
	return rule, nil
}

// RegisterReminderRule adds or replaces the rule for lead.
func RegisterReminderRule(lead core.ReminderLead, rule ReminderRule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules[lead] = rule
}

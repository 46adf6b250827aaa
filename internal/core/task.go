package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusTodo  TaskStatus = "todo"
	StatusDoing TaskStatus = "doing"
	StatusDone  TaskStatus = "done"

	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"

	ReminderNone ReminderLead = "none"
	Reminder0m   ReminderLead = "0m"
	Reminder1m   ReminderLead = "1m"
	Reminder5m   ReminderLead = "5m"
	Reminder15m  ReminderLead = "15m"
	Reminder30m  ReminderLead = "30m"
	Reminder45m  ReminderLead = "45m"
	Reminder1h   ReminderLead = "1h"
	Reminder2h   ReminderLead = "2h"
	Reminder1d   ReminderLead = "1d"
)

type (
	TaskStatus   string
	TaskPriority string
	// ReminderLead is how long before the deadline a reminder fires.
	ReminderLead string

	// DateTime is a due date-time. It accepts RFC 3339 as well as the
	// zone-less "2006-01-02T15:04" form produced by datetime-local inputs,
	// which is interpreted in time.Local.
	DateTime struct {
		time.Time
	}

	Task struct {
		ID           string       `json:"id"`
		Title        string       `json:"title"`
		Description  string       `json:"description,omitempty"`
		Status       TaskStatus   `json:"status"`
		Priority     TaskPriority `json:"priority"`
		DueDate      *DateTime    `json:"dueDate,omitempty"`
		AssigneeID   string       `json:"assigneeId,omitempty"`
		CreatorID    string       `json:"creatorId,omitempty"`
		ReminderTime ReminderLead `json:"reminderTime,omitempty"`
		Notified     bool         `json:"notified,omitempty"`
		AssigneeName string       `json:"assigneeName,omitempty"`
		CreatedAt    int64        `json:"createdAt"`
	}
)

var (
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrInvalidReminder = errors.New("invalid reminder lead time")
	ErrTaskDone        = errors.New("task is already done")
)

var reminderOffsets = map[ReminderLead]time.Duration{
	Reminder0m:  0,
	Reminder1m:  time.Minute,
	Reminder5m:  5 * time.Minute,
	Reminder15m: 15 * time.Minute,
	Reminder30m: 30 * time.Minute,
	Reminder45m: 45 * time.Minute,
	Reminder1h:  time.Hour,
	Reminder2h:  2 * time.Hour,
	Reminder1d:  24 * time.Hour,
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func NewDateTime(t time.Time) *DateTime {
	return &DateTime{Time: t}
}

func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return DateTime{Time: t}, nil
		}
	}
	return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.RFC3339))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (s TaskStatus) Valid() bool {
	return s == StatusTodo || s == StatusDoing || s == StatusDone
}

// Next returns the forward transition of the todo -> doing -> done lifecycle.
func (s TaskStatus) Next() (TaskStatus, error) {
	switch s {
	case StatusTodo:
		return StatusDoing, nil
	case StatusDoing:
		return StatusDone, nil
	case StatusDone:
		return s, ErrTaskDone
	default:
		return s, ErrInvalidStatus
	}
}

func (p TaskPriority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Offset returns the lead duration. ok is false for "none", empty and unknown values.
func (r ReminderLead) Offset() (time.Duration, bool) {
	d, ok := reminderOffsets[r]
	return d, ok
}

func (r ReminderLead) Valid() bool {
	if r == "" || r == ReminderNone {
		return true
	}
	_, ok := reminderOffsets[r]
	return ok
}

// Advance moves the task one step forward in its lifecycle.
func (t *Task) Advance() error {
	next, err := t.Status.Next()
	if err != nil {
		return err
	}
	t.Status = next
	return nil
}

// InvolvesUser reports whether uid is the assignee or the creator.
func (t Task) InvolvesUser(uid string) bool {
	if uid == "" {
		return false
	}
	return t.AssigneeID == uid || t.CreatorID == uid
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !t.ReminderTime.Valid() {
		return ErrInvalidReminder
	}
	return nil
}

// Package scheduler polls for time-based conditions and raises notifications
// at most once per occurrence.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/remote"
	"famledger/internal/weather"
)

const dayLayout = "2006-01-02"

// Store is the slice of the state store the scheduler reads and writes.
type Store interface {
	UserID() string
	Tasks() []core.Task
	UpdateTask(ctx context.Context, id string, fields remote.Fields) (core.Task, error)
	AddNotification(ctx context.Context, n core.AppNotification) (core.AppNotification, bool)
	LastWeatherNotificationDate() string
	SetLastWeatherNotificationDate(ctx context.Context, date string)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often conditions are evaluated (default: 60s)
	PollInterval time.Duration

	// WeatherTriggerHour is the local hour from which the daily weather notice may fire (default: 8)
	WeatherTriggerHour int

	// Location is the wall clock used for the weather gate (default: time.Local)
	Location *time.Location
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:       60 * time.Second,
		WeatherTriggerHour: 8,
		Location:           time.Local,
	}
}

// Result reports what a poll fired.
type Result struct {
	Weather   bool
	Reminders []string
}

type Scheduler struct {
	store   Store
	weather weather.Source
	config  Config
	logger  *log.Logger
	now     func() time.Time

	// one poll at a time so a reminder is never raised twice
	pollMu sync.Mutex
	// tasks reminded by this scheduler whose notified flag is not yet
	// visible in the store, e.g. a live query delivered the remote copy
	// while the latch write was still queued. Guarded by pollMu.
	latched map[string]struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(store Store, source weather.Source, config Config, logger *log.Logger) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		store:   store,
		weather: source,
		config:  config,
		logger:  logger.WithComponent(log.ComponentScheduler),
		now:     time.Now,
		latched: make(map[string]struct{}),
	}
}

// Start runs a poll at once and then every PollInterval. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Scheduler started",
		"poll_interval", s.config.PollInterval,
		"weather_trigger_hour", s.config.WeatherTriggerHour)
	return nil
}

// Stop clears the ticker and waits for an in-flight poll.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning returns whether the polling loop is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.Poll(ctx, s.now())

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll(ctx, s.now())
		}
	}
}

// Poll evaluates the daily weather check and the task deadline reminders at now.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) Result {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	var res Result
	if s.store.UserID() == "" {
		return res
	}
	res.Weather = s.checkWeather(ctx, now)
	res.Reminders = s.checkDeadlines(ctx, now)
	return res
}

// checkWeather fires once per calendar day, on the first poll at or after
// the trigger hour. A failed fetch is retried on the next poll.
func (s *Scheduler) checkWeather(ctx context.Context, now time.Time) bool {
	if s.weather == nil {
		return false
	}
	local := now.In(s.config.Location)
	today := local.Format(dayLayout)
	if local.Hour() < s.config.WeatherTriggerHour || s.store.LastWeatherNotificationDate() == today {
		return false
	}

	report, err := s.weather.Current(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Weather fetch failed", log.FieldError, err)
		return false
	}

	n := core.NewNotification("", core.NotificationWeather, "Daily weather", weather.Message(report), now)
	if _, ok := s.store.AddNotification(ctx, n); !ok {
		return false
	}
	s.store.SetLastWeatherNotificationDate(ctx, today)
	s.logger.InfoContext(ctx, "Weather notification raised", "date", today)
	return true
}

// checkDeadlines raises one reminder per task whose window contains now and
// latches the task's notified flag.
func (s *Scheduler) checkDeadlines(ctx context.Context, now time.Time) []string {
	uid := s.store.UserID()
	tasks := s.store.Tasks()
	s.pruneLatched(tasks)

	var fired []string
	for _, t := range tasks {
		if _, ok := s.latched[t.ID]; ok {
			continue
		}
		if !s.reminderDue(t, uid, now) {
			continue
		}

		msg := fmt.Sprintf("Task %q is due at %s", t.Title, t.DueDate.In(s.config.Location).Format("2006-01-02 15:04"))
		n := core.NewNotification("", core.NotificationDeadline, "Upcoming deadline", msg, now)
		if _, ok := s.store.AddNotification(ctx, n); !ok {
			continue
		}
		if _, err := s.store.UpdateTask(ctx, t.ID, remote.Fields{"notified": true}); err != nil {
			s.logger.WarnContext(ctx, "Failed to latch reminder",
				log.FieldRecordID, t.ID,
				log.FieldError, err)
			continue
		}
		s.latched[t.ID] = struct{}{}
		fired = append(fired, t.ID)
		s.logger.InfoContext(ctx, "Deadline reminder raised",
			log.FieldRecordID, t.ID,
			"lead", string(t.ReminderTime))
	}
	return fired
}

// pruneLatched forgets tasks that are gone or show notified=true.
func (s *Scheduler) pruneLatched(tasks []core.Task) {
	if len(s.latched) == 0 {
		return
	}
	pending := make(map[string]struct{}, len(s.latched))
	for _, t := range tasks {
		if _, ok := s.latched[t.ID]; ok && !t.Notified {
			pending[t.ID] = struct{}{}
		}
	}
	s.latched = pending
}

func (s *Scheduler) reminderDue(t core.Task, uid string, now time.Time) bool {
	if t.DueDate == nil || t.Notified || t.Status == core.StatusDone {
		return false
	}
	if t.ReminderTime == "" || t.ReminderTime == core.ReminderNone {
		return false
	}
	if !t.InvolvesUser(uid) {
		return false
	}
	rule, err := GetReminderRule(t.ReminderTime)
	if err != nil {
		return false
	}
	from, to := rule.Window(t.DueDate.Time)
	return !now.Before(from) && now.Before(to)
}

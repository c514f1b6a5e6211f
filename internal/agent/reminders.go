package agent

import (
	"context"
	"log"
	"time"

	"github.com/priya/fete/internal/observability"
	"github.com/priya/fete/internal/store"
)

// Sender delivers a reminder message to a chat.
type Sender interface {
	Send(chatID string, text string) error
}

// ReminderStore is the slice of the store the scheduler polls.
type ReminderStore interface {
	DueReminders(now time.Time) ([]store.Reminder, error)
	MarkReminderSent(id int) error
}

// Scheduler delivers prep-task reminders seeded by plan finalization. It
// polls rather than sleeping until the next deadline, so reminders added
// while it runs are picked up without coordination.
type Scheduler struct {
	Store    ReminderStore
	Sender   Sender
	Logger   *observability.Logger
	Interval time.Duration
}

func NewScheduler(st ReminderStore, sender Sender, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		Store:    st,
		Sender:   sender,
		Logger:   logger,
		Interval: time.Minute,
	}
}

// Start blocks until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick sends every due reminder. A reminder is marked sent only after a
// successful delivery; failures are retried on the next tick.
func (s *Scheduler) tick(now time.Time) {
	due, err := s.Store.DueReminders(now)
	if err != nil {
		log.Printf("reminder poll failed: %v", err)
		return
	}
	for _, r := range due {
		if err := s.Sender.Send(r.ChatID, "⏰ Prep reminder: "+r.Description); err != nil {
			log.Printf("failed to deliver reminder %d: %v", r.ID, err)
			continue
		}
		if err := s.Store.MarkReminderSent(r.ID); err != nil {
			log.Printf("failed to mark reminder %d sent: %v", r.ID, err)
			continue
		}
		if s.Logger != nil {
			s.Logger.LogReminder(r.ChatID, r.Description)
		}
	}
}

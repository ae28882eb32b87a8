// ABOUTME: Scheduled daily check-in reminders for all registered patients
// ABOUTME: Cron-driven, send-only; reminders are not persisted as messages

package reminder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/cuideme/care-gateway/internal/metrics"
	"github.com/cuideme/care-gateway/internal/store"
)

// PatientLister defines what the runner needs from storage
type PatientLister interface {
	ListPatients(ctx context.Context) ([]*store.Patient, error)
}

// TextSender is the outbound messaging-channel capability.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// Runner sends the configured reminder message to every patient. One
// failed delivery does not stop the sweep.
type Runner struct {
	store   PatientLister
	sender  TextSender
	message string
	logger  *slog.Logger
}

// NewRunner creates a reminder runner.
func NewRunner(st PatientLister, sender TextSender, message string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:   st,
		sender:  sender,
		message: message,
		logger:  logger.With("component", "reminder"),
	}
}

// Run performs one reminder sweep over all patients. Returns the number
// of successful deliveries; per-patient failures are logged and counted
// but only a storage failure aborts the sweep.
func (r *Runner) Run(ctx context.Context) (int, error) {
	patients, err := r.store.ListPatients(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing patients: %w", err)
	}

	sent := 0
	for _, p := range patients {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.sender.SendText(ctx, p.Address, r.message); err != nil {
			r.logger.Error("reminder send failed", "error", err, "patient_id", p.ID)
			metrics.ReminderSends.WithLabelValues("failed").Inc()
			continue
		}
		metrics.ReminderSends.WithLabelValues("ok").Inc()
		sent++
	}

	r.logger.Info("reminder sweep complete", "sent", sent, "total", len(patients))
	return sent, nil
}

// Scheduler runs the reminder sweep on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler wires the runner to the given cron expression (standard
// five-field format, e.g. "0 9 * * *" for 09:00 daily).
func NewScheduler(schedule string, runner *Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reminder")

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := runner.Run(context.Background()); err != nil {
			logger.Error("scheduled reminder sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins the schedule in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reminder scheduler started")
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("reminder scheduler stopped")
}

// ABOUTME: Central conversation service for message ingestion and control handoff
// ABOUTME: Persist first, then broadcast - the store is the source of truth

package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cuideme/care-gateway/internal/metrics"
	"github.com/cuideme/care-gateway/internal/store"
)

// ErrAIDisabled is returned when an operation needs the AI capability and
// it is not configured.
var ErrAIDisabled = errors.New("ai capability not configured")

// ErrNoMessages is returned when a summary is requested for a patient with
// an empty conversation.
var ErrNoMessages = errors.New("no messages for patient")

// ErrDelivery is returned when the messaging channel could not deliver a
// professional-initiated message.
var ErrDelivery = errors.New("could not deliver message")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	FindOrCreatePatient(ctx context.Context, address string) (*store.Patient, error)
	GetPatient(ctx context.Context, id string) (*store.Patient, error)
	ListPatients(ctx context.Context) ([]*store.Patient, error)
	SetControlMode(ctx context.Context, id string, mode store.ControlMode) error
	AppendMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, patientID string) ([]*store.Message, error)
	ClearAlerts(ctx context.Context, patientID string) error
	HasUnreadAlert(ctx context.Context, patientID string) (bool, error)
}

// AlertDetector classifies inbound patient messages.
type AlertDetector interface {
	Detect(text string) (bool, []string)
}

// TextSender is the outbound messaging-channel capability.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// ReplyPolicy decides whether to auto-reply to a non-alerting message.
type ReplyPolicy interface {
	Enabled() bool
	Decide(ctx context.Context, text string) (bool, string, error)
}

// Summarizer produces a clinical summary of a conversation transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// dependencyTimeout bounds calls to the AI and messaging-channel
// capabilities so a slow dependency cannot stall ingestion indefinitely.
const dependencyTimeout = 30 * time.Second

// appendShards spreads the per-patient append locks over independent
// mutexes, mirroring the registry's sharding.
const appendShards = 32

// Service sequences ingestion, control handoff, professional replies and
// summaries for patient conversations.
type Service struct {
	store      ConversationStore
	registry   *Registry
	detector   AlertDetector
	sender     TextSender
	policy     ReplyPolicy
	summarizer Summarizer
	logger     *slog.Logger

	// appendLocks serialize the persist+broadcast pair per patient, so
	// viewers observe messages in exactly the order the store holds them.
	appendLocks [appendShards]sync.Mutex
}

// New creates a conversation service. The summarizer may be nil when the
// AI capability is unconfigured.
func New(st ConversationStore, registry *Registry, detector AlertDetector, sender TextSender, policy ReplyPolicy, summarizer Summarizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		registry:   registry,
		detector:   detector,
		sender:     sender,
		policy:     policy,
		summarizer: summarizer,
		logger:     logger.With("component", "conversation"),
	}
}

// Registry exposes the viewer registry for live-view handlers.
func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) appendLock(patientID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(patientID))
	return &s.appendLocks[h.Sum32()%appendShards]
}

// persistAndBroadcast appends the message and fans it out under the
// patient's append lock. Without the lock a concurrent writer could
// persist later but broadcast earlier, and live viewers would see an
// order that contradicts the read path. Network calls never happen here;
// broadcast sends are non-blocking, so the hold is bounded.
func (s *Service) persistAndBroadcast(ctx context.Context, msg *store.Message) error {
	mu := s.appendLock(msg.PatientID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	s.registry.Broadcast(msg.PatientID, msg)
	return nil
}

// Ingest processes one inbound patient message end to end:
//
//  1. Resolve the patient by address, creating on first contact.
//  2. Classify the text against the concern keywords.
//  3. Persist the message - the durability point.
//  4. Broadcast the persisted message to live viewers.
//  5. If nothing alerted and the patient is still under automatic
//     control, consult the auto-response policy and deliver its reply.
//
// Only failures in steps 1 and 3 propagate to the caller. The auto-reply
// tail is best effort: its failures are logged and swallowed so an AI or
// messaging-channel outage never breaks ingestion.
func (s *Service) Ingest(ctx context.Context, address, text string) error {
	patient, err := s.store.FindOrCreatePatient(ctx, address)
	if err != nil {
		return fmt.Errorf("resolving patient: %w", err)
	}

	hasAlert, matched := s.detector.Detect(text)
	if hasAlert {
		s.logger.Info("alert detected",
			"patient_id", patient.ID,
			"keywords", strings.Join(matched, ","))
	}

	msg := &store.Message{
		PatientID: patient.ID,
		Text:      text,
		Sender:    store.SenderPatient,
		HasAlert:  hasAlert,
	}
	if err := s.persistAndBroadcast(ctx, msg); err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	metrics.MessagesIngested.WithLabelValues(alertLabel(hasAlert)).Inc()

	if !hasAlert {
		s.maybeAutoReply(ctx, patient.ID, text)
	}
	return nil
}

// maybeAutoReply runs the gated auto-response path. The control mode is
// re-read from the store at decision time so a professional who assumed
// control a moment ago is never raced by a stale patient snapshot.
func (s *Service) maybeAutoReply(ctx context.Context, patientID, text string) {
	if s.policy == nil || !s.policy.Enabled() {
		return
	}

	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		s.logger.Error("auto-reply control check failed", "error", err, "patient_id", patientID)
		return
	}
	if patient.ControlMode != store.ControlModeAutomatic {
		s.logger.Debug("auto-reply skipped, conversation under manual control", "patient_id", patientID)
		return
	}

	depCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	shouldReply, reply, err := s.policy.Decide(depCtx, text)
	if err != nil {
		s.logger.Error("auto-reply decision failed", "error", err, "patient_id", patientID)
		return
	}
	if !shouldReply {
		return
	}

	if err := s.sender.SendText(depCtx, patient.Address, reply); err != nil {
		// No retry here: the inbound message is already persisted and
		// broadcast, and a human can always follow up.
		s.logger.Error("auto-reply send failed", "error", err, "patient_id", patientID)
		return
	}

	msg := &store.Message{
		PatientID: patient.ID,
		Text:      reply,
		Sender:    store.SenderSystem,
		HasAlert:  false,
	}
	if err := s.persistAndBroadcast(ctx, msg); err != nil {
		s.logger.Error("auto-reply persistence failed", "error", err, "patient_id", patientID)
		return
	}
	metrics.AutoRepliesSent.Inc()
	s.logger.Info("auto-reply sent", "patient_id", patientID)
}

// SendProfessionalReply delivers a human-authored message to the patient.
// Delivery comes first: if the messaging channel fails, nothing is
// persisted or broadcast and the caller gets an error to surface.
func (s *Service) SendProfessionalReply(ctx context.Context, patientID, text string) (*store.Message, error) {
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	depCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	if err := s.sender.SendText(depCtx, patient.Address, text); err != nil {
		s.logger.Error("professional reply send failed", "error", err, "patient_id", patientID)
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	msg := &store.Message{
		PatientID: patient.ID,
		Text:      text,
		Sender:    store.SenderProfessional,
		HasAlert:  false,
	}
	if err := s.persistAndBroadcast(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}
	return msg, nil
}

// ReadConversation returns a patient's messages in persistence order and
// clears the patient's alert flags. The clear is an explicit, separately
// implemented operation even though the panel triggers it by reading.
func (s *Service) ReadConversation(ctx context.Context, patientID string) ([]*store.Message, error) {
	messages, err := s.store.ListMessages(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	if err := s.store.ClearAlerts(ctx, patientID); err != nil {
		return nil, fmt.Errorf("clearing alerts: %w", err)
	}
	return messages, nil
}

// AssumeControl switches a patient to manual control. Idempotent; returns
// store.ErrNotFound for unknown patients.
func (s *Service) AssumeControl(ctx context.Context, patientID string) error {
	if err := s.store.SetControlMode(ctx, patientID, store.ControlModeManual); err != nil {
		return err
	}
	s.logger.Info("manual control assumed", "patient_id", patientID)
	return nil
}

// ReleaseControl switches a patient back to automatic control. Idempotent;
// returns store.ErrNotFound for unknown patients.
func (s *Service) ReleaseControl(ctx context.Context, patientID string) error {
	if err := s.store.SetControlMode(ctx, patientID, store.ControlModeAutomatic); err != nil {
		return err
	}
	s.logger.Info("automatic control released", "patient_id", patientID)
	return nil
}

// PatientSummary is a patient with the alert rollup the panel shows.
type PatientSummary struct {
	Patient  *store.Patient
	HasAlert bool
}

// ListPatients returns every patient with whether any of their messages
// still carries an alert flag.
func (s *Service) ListPatients(ctx context.Context) ([]*PatientSummary, error) {
	patients, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}

	summaries := make([]*PatientSummary, 0, len(patients))
	for _, p := range patients {
		hasAlert, err := s.store.HasUnreadAlert(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("checking alerts for %s: %w", p.ID, err)
		}
		summaries = append(summaries, &PatientSummary{Patient: p, HasAlert: hasAlert})
	}
	return summaries, nil
}

// Summarize produces an AI summary of the patient's conversation.
// Returns ErrAIDisabled when no summarizer is configured and ErrNoMessages
// when the conversation is empty.
func (s *Service) Summarize(ctx context.Context, patientID string) (string, error) {
	if s.summarizer == nil {
		return "", ErrAIDisabled
	}

	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return "", err
	}

	messages, err := s.store.ListMessages(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	var transcript strings.Builder
	for _, msg := range messages {
		name := "Paciente"
		if msg.Sender != store.SenderPatient {
			name = "Profissional"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", name, msg.Text)
	}

	depCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	summary, err := s.summarizer.Summarize(depCtx, transcript.String())
	if err != nil {
		return "", fmt.Errorf("summarizing conversation: %w", err)
	}
	return summary, nil
}

func alertLabel(hasAlert bool) string {
	if hasAlert {
		return "alert"
	}
	return "ok"
}

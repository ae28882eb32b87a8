// ABOUTME: Store interface and data types for care-gateway persistence
// ABOUTME: Defines Patient, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ControlMode gates whether automated replies may be sent to a patient.
// It is a closed enumeration: every patient is always in exactly one of
// the two modes, and only the control handoff operations change it.
type ControlMode string

const (
	// ControlModeAutomatic allows the auto-response policy to reply.
	// This is the initial mode for every new patient.
	ControlModeAutomatic ControlMode = "automatic"
	// ControlModeManual means a professional has assumed the conversation.
	ControlModeManual ControlMode = "manual"
)

// Valid reports whether m is one of the two known control modes.
func (m ControlMode) Valid() bool {
	return m == ControlModeAutomatic || m == ControlModeManual
}

// Sender role constants for messages
const (
	SenderPatient      = "patient"
	SenderProfessional = "professional"
	SenderSystem       = "system"
)

// Patient is a monitored party identified by a stable external address
// (a WhatsApp phone number). Patients are created on first contact and
// never deleted.
type Patient struct {
	ID          string
	Address     string
	Name        string
	ControlMode ControlMode
	CreatedAt   time.Time
}

// Message is a single entry in a patient's conversation. Messages are
// append-only and totally ordered by timestamp for a given patient; the
// only mutable field is the alert flag, cleared when a professional reads
// the conversation.
type Message struct {
	ID        string
	PatientID string
	Text      string
	Sender    string
	HasAlert  bool
	Timestamp time.Time
}

// Professional is a human operator who can log in to the panel, view
// conversations and take manual control.
type Professional struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store defines the interface for patient and message persistence
type Store interface {
	// Patients
	FindOrCreatePatient(ctx context.Context, address string) (*Patient, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	ListPatients(ctx context.Context) ([]*Patient, error)
	SetControlMode(ctx context.Context, id string, mode ControlMode) error

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, patientID string) ([]*Message, error)
	ClearAlerts(ctx context.Context, patientID string) error
	HasUnreadAlert(ctx context.Context, patientID string) (bool, error)

	// Professionals
	CreateProfessional(ctx context.Context, p *Professional) error
	GetProfessionalByEmail(ctx context.Context, email string) (*Professional, error)

	// Close releases any resources held by the store
	Close() error
}

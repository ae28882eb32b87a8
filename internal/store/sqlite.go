// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides patient/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time; a second pooled connection that
	// tries to write gets SQLITE_BUSY. A single connection serializes all
	// access so concurrent ingestion queues instead of failing.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS patients (
			id           TEXT PRIMARY KEY,
			address      TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL DEFAULT '',
			control_mode TEXT NOT NULL DEFAULT 'automatic',
			created_at   TEXT NOT NULL,

			CHECK (control_mode IN ('automatic', 'manual'))
		);

		CREATE INDEX IF NOT EXISTS idx_patients_address ON patients(address);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			text       TEXT NOT NULL,
			sender     TEXT NOT NULL DEFAULT 'patient',
			has_alert  INTEGER NOT NULL DEFAULT 0,
			timestamp  TEXT NOT NULL,

			FOREIGN KEY (patient_id) REFERENCES patients(id),
			CHECK (sender IN ('patient', 'professional', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_patient_timestamp
			ON messages(patient_id, timestamp);

		CREATE INDEX IF NOT EXISTS idx_messages_patient_alert
			ON messages(patient_id, has_alert);

		CREATE TABLE IF NOT EXISTS professionals (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_professionals_email ON professionals(email);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// FindOrCreatePatient looks up a patient by external address, creating one
// in automatic mode if none exists. The lookup-or-create is idempotent:
// concurrent calls for the same address resolve to the same patient row.
func (s *SQLiteStore) FindOrCreatePatient(ctx context.Context, address string) (*Patient, error) {
	patient, err := s.getPatientByAddress(ctx, address)
	if err == nil {
		return patient, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	patient = &Patient{
		ID:          newID(),
		Address:     address,
		ControlMode: ControlModeAutomatic,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO patients (id, address, name, control_mode, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		patient.ID,
		patient.Address,
		patient.Name,
		string(patient.ControlMode),
		patient.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		// Another request may have created the patient between our lookup
		// and insert; the UNIQUE constraint on address detects the race.
		if isConstraintViolation(err) {
			return s.getPatientByAddress(ctx, address)
		}
		return nil, fmt.Errorf("inserting patient: %w", err)
	}

	s.logger.Debug("created patient", "id", patient.ID, "address", address)
	return patient, nil
}

func (s *SQLiteStore) getPatientByAddress(ctx context.Context, address string) (*Patient, error) {
	query := `
		SELECT id, address, name, control_mode, created_at
		FROM patients
		WHERE address = ?
	`
	return s.scanPatient(s.db.QueryRowContext(ctx, query, address))
}

// GetPatient retrieves a patient by ID.
// Returns ErrNotFound if the patient doesn't exist.
func (s *SQLiteStore) GetPatient(ctx context.Context, id string) (*Patient, error) {
	query := `
		SELECT id, address, name, control_mode, created_at
		FROM patients
		WHERE id = ?
	`
	return s.scanPatient(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) scanPatient(row *sql.Row) (*Patient, error) {
	var patient Patient
	var mode, createdAtStr string

	err := row.Scan(
		&patient.ID,
		&patient.Address,
		&patient.Name,
		&mode,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying patient: %w", err)
	}

	patient.ControlMode = ControlMode(mode)
	patient.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &patient, nil
}

// ListPatients returns all patients ordered by creation time.
func (s *SQLiteStore) ListPatients(ctx context.Context) ([]*Patient, error) {
	query := `
		SELECT id, address, name, control_mode, created_at
		FROM patients
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var patient Patient
		var mode, createdAtStr string
		if err := rows.Scan(&patient.ID, &patient.Address, &patient.Name, &mode, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning patient: %w", err)
		}
		patient.ControlMode = ControlMode(mode)
		patient.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		patients = append(patients, &patient)
	}
	return patients, rows.Err()
}

// SetControlMode updates a patient's control mode.
// Returns ErrNotFound if the patient doesn't exist. Setting the mode a
// patient is already in succeeds and is a no-op state-wise.
func (s *SQLiteStore) SetControlMode(ctx context.Context, id string, mode ControlMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid control mode %q", mode)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE patients SET control_mode = ? WHERE id = ?`,
		string(mode), id,
	)
	if err != nil {
		return fmt.Errorf("updating control mode: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("control mode updated", "patient_id", id, "mode", mode)
	return nil
}

// AppendMessage stores a new message. The timestamp is server-assigned if
// the caller left it zero, preserving the per-patient total order.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, patient_id, text, sender, has_alert, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.PatientID,
		msg.Text,
		msg.Sender,
		boolToInt(msg.HasAlert),
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message appended",
		"id", msg.ID,
		"patient_id", msg.PatientID,
		"sender", msg.Sender,
		"has_alert", msg.HasAlert)
	return nil
}

// ListMessages returns all messages for a patient in timestamp order.
func (s *SQLiteStore) ListMessages(ctx context.Context, patientID string) ([]*Message, error) {
	query := `
		SELECT id, patient_id, text, sender, has_alert, timestamp
		FROM messages
		WHERE patient_id = ?
		ORDER BY timestamp
	`

	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var hasAlert int
		var timestampStr string
		if err := rows.Scan(&msg.ID, &msg.PatientID, &msg.Text, &msg.Sender, &hasAlert, &timestampStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.HasAlert = hasAlert != 0
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ClearAlerts marks all of a patient's alerting messages as reviewed.
// The clear is idempotent; other patients' alerts are untouched.
func (s *SQLiteStore) ClearAlerts(ctx context.Context, patientID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET has_alert = 0 WHERE patient_id = ? AND has_alert = 1`,
		patientID,
	)
	if err != nil {
		return fmt.Errorf("clearing alerts: %w", err)
	}
	return nil
}

// HasUnreadAlert reports whether any message for the patient still carries
// an alert flag.
func (s *SQLiteStore) HasUnreadAlert(ctx context.Context, patientID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE patient_id = ? AND has_alert = 1 LIMIT 1`,
		patientID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying alerts: %w", err)
	}
	return true, nil
}

// CreateProfessional stores a new professional account.
func (s *SQLiteStore) CreateProfessional(ctx context.Context, p *Professional) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO professionals (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.PasswordHash,
		p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting professional: %w", err)
	}
	return nil
}

// GetProfessionalByEmail retrieves a professional account by email.
// Returns ErrNotFound if no account exists.
func (s *SQLiteStore) GetProfessionalByEmail(ctx context.Context, email string) (*Professional, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM professionals
		WHERE email = ?
	`

	var p Professional
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying professional: %w", err)
	}

	p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

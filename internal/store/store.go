// Package store defines the persistence contract for received mail, and
// provides a memory-backed and an optional file-snapshotting implementation.
package store

import "time"

// Email is a single received message, as handed off by the SMTP session
// state machine once DATA completes.
type Email struct {
	ID          string    `yaml:"id"`
	Sender      string    `yaml:"sender"`
	Recipients  []string  `yaml:"recipients"`
	Subject     string    `yaml:"subject"`
	Body        string    `yaml:"body"`
	RawMessage  []byte    `yaml:"raw_message"`
	SizeBytes   int       `yaml:"size_bytes"`
	ReceivedAt  time.Time `yaml:"received_at"`
	Status      string    `yaml:"status"`
	AuthUser    string    `yaml:"auth_user"`
	ClientIP    string    `yaml:"client_ip"`
}

// Status values an Email can take.
const (
	StatusReceived = "received"
	StatusRead     = "read"
)

// EmailStore is the contract the SMTP core requires of its persistence
// layer, extended with the read-side operations the companion web UI needs.
//
// All methods must be safe to call concurrently: many session runners may
// call Create at once, while the web UI calls the read-side methods.
type EmailStore interface {
	// Create persists e, assigning it an ID, and returns that ID. e is
	// copied; the store does not retain the caller's slice/struct.
	Create(e Email) (id string, err error)

	// Get returns a single Email by ID.
	Get(id string) (Email, bool)

	// List returns all persisted emails, newest first.
	List() []Email

	// MarkRead flips the named email's status to StatusRead.
	MarkRead(id string) error

	// DeleteAll removes every persisted email.
	DeleteAll() error

	// Count returns the number of persisted emails.
	Count() int
}

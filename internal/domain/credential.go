package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JournalCredential holds a journal's RQC credentials together with
// the per-journal anonymization salt. RQCJournalID and APIKey are only
// valid as a pair and are always stored together. The salt is
// generated when the row is first created and never rotated; rotation
// would change every pseudonym derived from it.
type JournalCredential struct {
	JournalID       uuid.UUID
	RQCJournalID    int
	APIKey          string
	Salt            string
	Validated       bool
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UsableForDelivery reports whether RQC calls may be attempted with
// this credential. Unvalidated or empty keys block all delivery for
// the journal.
func (c *JournalCredential) UsableForDelivery() bool {
	return c.APIKey != "" && c.Validated
}

const saltBytes = 16

// NewJournalSalt returns a fresh random hex-encoded salt for pseudonym
// derivation.
func NewJournalSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Package identity generates the session and request identifiers used by
// the ledger and the approval gate.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns a session identifier. A session groups all ledger
// entries from one continuous run.
func NewSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%x", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}

// NewRequestID returns an approval request identifier.
func NewRequestID() string {
	return "req-" + uuid.NewString()
}

// validID matches alphanumeric, dash, underscore, and dot characters only.
var validID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateID rejects identifiers that could cause path traversal when used
// as file name components (review queue files are keyed by request ID).
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("id must not contain '..'")
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("id contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

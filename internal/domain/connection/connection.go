// Package connection defines the push connection domain entity.
package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/ssepush/internal/domain"
)

// MaxUserIDLength bounds the user identifier accepted at connect time.
const MaxUserIDLength = 256

var (
	// ErrInvalidUserID is returned when a connect request carries an unusable user id.
	ErrInvalidUserID = fmt.Errorf("%w: invalid user id", domain.ErrValidation)

	// ErrHandshakeFailed is returned when the initial event could not be
	// written to a new stream. The connection is not registered.
	ErrHandshakeFailed = errors.New("connection: handshake write failed")
)

// CloseReason records why a connection left the registry.
type CloseReason string

const (
	ReasonCompletion CloseReason = "completion" // client disconnected
	ReasonTimeout    CloseReason = "timeout"    // transport-enforced limit
	ReasonError      CloseReason = "error"      // transport read/write error
	ReasonRemoved    CloseReason = "removed"    // explicit close request
	ReasonEvicted    CloseReason = "evicted"    // push write failed
	ReasonReplaced   CloseReason = "replaced"   // same user connected again
	ReasonShutdown   CloseReason = "shutdown"
)

// Info describes a registered connection.
type Info struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ValidateUserID checks that id can be used as a registry key.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidUserID)
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("%w: user id longer than %d bytes", ErrInvalidUserID, MaxUserIDLength)
	}
	return nil
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OrderNumberPrefix      = "ORD"
	CommissionNumberPrefix = "COM"
)

// GenerateID generates a new unique ID for an entity
func GenerateID() string {
	return uuid.New().String()
}

// GenerateEventID generates an ID for an outbox event
func GenerateEventID() string {
	id := uuid.New().String()

	return fmt.Sprintf("evt-%s", id[:8])
}

// GenerateNumber builds a human readable reference such as ORD-20240131-4F2A9C.
// The suffix comes from a random UUID; uniqueness is enforced by the database.
func GenerateNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])

	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), suffix)
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

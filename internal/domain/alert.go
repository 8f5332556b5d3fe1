package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertSeverity grades how urgent an overdue alert is
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// criticalAfterHours is the point at which an overdue alert escalates
// from warning to critical.
const criticalAfterHours = 24

// SeverityFor returns the severity tier for a given overdue duration
func SeverityFor(hoursOverdue int) AlertSeverity {
	if hoursOverdue > criticalAfterHours {
		return SeverityCritical
	}
	return SeverityWarning
}

// OverdueAlert is a transient view of an issued request whose return
// deadline has passed. It is re-derived on every evaluation tick and
// never persisted.
type OverdueAlert struct {
	ID             string
	RequestID      uuid.UUID
	RequesterName  string
	Department     string
	TotalAmount    decimal.Decimal
	HoursOverdue   int
	MinutesOverdue int
	Severity       AlertSeverity
	Muted          bool
	LastAlertTime  time.Time
}

// AlertID builds the stable alert identifier for a request
func AlertID(requestID uuid.UUID) string {
	return "overdue_" + requestID.String()
}

package auth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Audit actions
const (
	ActionRegister    = "user.register"
	ActionOrgCreate   = "organization.create"
	ActionAuthSuccess = "auth.success"
	ActionAuthFailure = "auth.failure"
)

// Audit outcomes
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEvent is one security-relevant event
type AuditEvent struct {
	Action         string
	Status         string
	UserID         *int64
	OrganizationID *int64
	Email          string
	IPAddress      string
	Reason         string
	CreatedAt      time.Time
}

// AuditLogger records security events to a dedicated logger
type AuditLogger struct {
	logger *logrus.Logger
}

// NewAuditLogger creates an AuditLogger
func NewAuditLogger(logger *logrus.Logger) *AuditLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditLogger{logger: logger}
}

// Log writes ev. Events without an action or status are dropped.
func (al *AuditLogger) Log(ctx context.Context, ev AuditEvent) {
	if ev.Action == "" || ev.Status == "" {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	fields := logrus.Fields{
		"audit":     true,
		"action":    ev.Action,
		"status":    ev.Status,
		"timestamp": ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.UserID != nil {
		fields["user_id"] = *ev.UserID
	}
	if ev.OrganizationID != nil {
		fields["organization_id"] = *ev.OrganizationID
	}
	if ev.Email != "" {
		fields["email"] = ev.Email
	}
	if ev.IPAddress != "" {
		fields["ip_address"] = ev.IPAddress
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}

	entry := al.logger.WithContext(ctx).WithFields(fields)
	if ev.Status == StatusSuccess {
		entry.Info("Audit event")
		return
	}
	entry.Warn("Audit event")
}

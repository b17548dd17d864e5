package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Email is an outbound message
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email. Delivery is best effort and never part of a
// store transaction.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMailer{logger: logger}
}

// Send logs msg
func (m *LogMailer) Send(ctx context.Context, msg Email) error {
	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email queued")
	m.logger.WithField("to", msg.To).Debug(msg.Body)
	return nil
}

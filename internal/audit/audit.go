// Package audit records account-operation outcomes. Secrets and encoded
// credential tokens never reach a sink — callers pass only the operation
// name, the username and a short outcome label.
package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sshkeeper/internal/logging"
)

// Sink receives one entry per attempted mutating operation.
type Sink interface {
	Record(ctx context.Context, op, username, outcome string)
}

// LogSink writes audit entries through the structured logger, tagging each
// with a unique event id so entries can be referenced individually.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{log: l.With("component", "audit")}
}

func (s *LogSink) Record(ctx context.Context, op, username, outcome string) {
	s.log.Info(ctx, "account operation",
		"event_id", uuid.NewString(),
		"op", op,
		"username", username,
		"outcome", outcome,
	)
}

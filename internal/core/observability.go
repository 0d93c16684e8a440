package core

import (
	"context"
	"time"

	"chemcore/pkg/domain"
)

// Logger captures the logging surface used by the dispenser. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies timestamps for audit entries and durations.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now returns the current time in UTC, falling back to the system clock when fn is nil.
func (fn ClockFunc) Now() time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn().UTC()
}

// MetricsRecorder observes the outcome and latency of dispenser operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around dispenser operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus classifies the outcome recorded in an AuditEntry.
type AuditStatus string

// Audit statuses.
const (
	AuditStatusSuccess  AuditStatus = "success"
	AuditStatusRejected AuditStatus = "rejected"
	AuditStatusError    AuditStatus = "error"
)

// AuditEntry records one dispenser command for compliance trails.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	User      UserHandle
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

var auditMetadata = map[string]operationMeta{
	opAttach:         {entity: domain.EntityContainer, action: domain.ActionCreate},
	opSetMode:        {entity: domain.EntityContainer, action: domain.ActionUpdate},
	opSetPillStyle:   {entity: domain.EntityContainer, action: domain.ActionUpdate},
	opReagentButton:  {entity: domain.EntitySolution, action: domain.ActionUpdate},
	opCreatePills:    {entity: domain.EntityContainer, action: domain.ActionCreate},
	opOutputToBottle: {entity: domain.EntitySolution, action: domain.ActionUpdate},
	opInsertSlot:     {entity: domain.EntityContainer, action: domain.ActionUpdate},
	opEjectSlot:      {entity: domain.EntityContainer, action: domain.ActionUpdate},
}

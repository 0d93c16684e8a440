package core

import (
	"context"
	"errors"
	"time"

	"chemcore/pkg/domain"
)

// clickOps acknowledge the user when they succeed.
var clickOps = map[string]bool{
	opSetMode:        true,
	opSetPillStyle:   true,
	opReagentButton:  true,
	opCreatePills:    true,
	opOutputToBottle: true,
}

func (d *Dispenser) run(ctx context.Context, op string, user UserHandle, fn func(domain.Transaction) error) error {
	return d.runWithLabel(ctx, op, user, fn, nil)
}

// drop records a command rejected before it reached the store.
func (d *Dispenser) drop(ctx context.Context, op string, user UserHandle, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, span := d.tracer.Start(ctx, op)
	d.metrics.Observe(ctx, op, false, 0)
	span.End(err)
	d.recordAudit(ctx, op, user, err, 0)
	return d.handleFailure(ctx, op, user, err)
}

// runWithLabel executes fn in one store transaction, then refreshes the
// projection. updateLabel is read after fn returns so fn may decide it.
func (d *Dispenser) runWithLabel(ctx context.Context, op string, user UserHandle, fn func(domain.Transaction) error, updateLabel *bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, span := d.tracer.Start(ctx, op)
	start := d.clock.Now()
	res, err := d.store.RunInTransaction(ctx, fn)
	duration := d.clock.Now().Sub(start)
	d.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	d.recordAudit(ctx, op, user, err, duration)
	if err != nil {
		return d.handleFailure(ctx, op, user, err)
	}
	for _, v := range res.Violations {
		d.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "message", v.Message)
	}
	d.logger.Info("dispenser command applied", "operation", op, "owner", d.owner, "user", user, "duration", duration)

	label := updateLabel != nil && *updateLabel
	if _, err := d.refreshLocked(ctx, label); err != nil {
		d.logger.Error("projection refresh failed", "operation", op, "owner", d.owner, "error", err)
		return err
	}
	if clickOps[op] {
		d.acknowledger.Acknowledge(ctx, d.owner)
	}
	return nil
}

func (d *Dispenser) handleFailure(ctx context.Context, op string, user UserHandle, err error) error {
	if IsRejected(err) {
		d.logger.Debug("dispenser command dropped", "operation", op, "owner", d.owner, "reason", err)
		return err
	}
	if be, ok := bufferError(err); ok {
		d.logger.Warn("buffer withdrawal failed", "operation", op, "owner", d.owner, "user", user, "needed", be.Needed, "available", be.Available)
		d.notifier.Notify(ctx, user, be.MessageKey())
		return err
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		d.logger.Error("dispenser invariant violated", "operation", op, "owner", d.owner, "error", err)
		return err
	}
	d.logger.Error("dispenser command failed", "operation", op, "owner", d.owner, "error", err)
	return err
}

func (d *Dispenser) recordAudit(ctx context.Context, op string, user UserHandle, err error, duration time.Duration) {
	meta, ok := auditMetadata[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  string(d.owner),
		User:      user,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: d.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		if IsRejected(err) {
			entry.Status = AuditStatusRejected
		}
		entry.Error = err.Error()
	}
	d.audit.Record(ctx, entry)
}

func (d *Dispenser) refreshLocked(ctx context.Context, updateLabel bool) (domain.Projection, error) {
	var proj domain.Projection
	err := d.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		proj, err = BuildProjection(view, d.owner)
		return err
	})
	if err != nil {
		return domain.Projection{}, err
	}
	d.revision++
	proj.UpdateLabel = updateLabel
	proj.Revision = d.revision
	d.last = proj
	if err := d.presenter.Present(ctx, proj); err != nil {
		d.logger.Error("present projection failed", "owner", d.owner, "revision", proj.Revision, "error", err)
	}
	return proj, nil
}

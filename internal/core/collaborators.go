package core

import (
	"context"

	"chemcore/pkg/domain"
)

// UserHandle identifies the actor issuing a command.
type UserHandle string

// Labeler attaches a label to a container inside the command transaction.
type Labeler interface {
	Label(ctx context.Context, tx domain.Transaction, handle domain.ContainerHandle, text string) error
}

// Notifier delivers user-visible messages such as buffer failures.
type Notifier interface {
	Notify(ctx context.Context, user UserHandle, messageKey string)
}

// Acknowledger gives feedback (a click) for accepted commands.
type Acknowledger interface {
	Acknowledge(ctx context.Context, owner domain.ContainerHandle)
}

// Presenter receives every refreshed projection.
type Presenter interface {
	Present(ctx context.Context, projection domain.Projection) error
}

// RevisionSource is implemented by presenters that keep projections across
// runs. A dispenser continues numbering after the highest revision reported.
type RevisionSource interface {
	LatestRevision(ctx context.Context, owner domain.ContainerHandle) (uint64, error)
}

// ContainerLabeler stores labels on the container record.
type ContainerLabeler struct{}

// Label sets the container label.
func (ContainerLabeler) Label(_ context.Context, tx domain.Transaction, handle domain.ContainerHandle, text string) error {
	_, err := tx.UpdateContainer(handle, func(c *domain.Container) error {
		c.Label = text
		return nil
	})
	return err
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, UserHandle, string) {}

type noopAcknowledger struct{}

func (noopAcknowledger) Acknowledge(context.Context, domain.ContainerHandle) {}

type noopPresenter struct{}

func (noopPresenter) Present(context.Context, domain.Projection) error { return nil }

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, user UserHandle, messageKey string)

// Notify calls fn.
func (fn NotifierFunc) Notify(ctx context.Context, user UserHandle, messageKey string) {
	fn(ctx, user, messageKey)
}

// PresenterFunc adapts a function into a Presenter.
type PresenterFunc func(ctx context.Context, projection domain.Projection) error

// Present calls fn.
func (fn PresenterFunc) Present(ctx context.Context, projection domain.Projection) error {
	return fn(ctx, projection)
}

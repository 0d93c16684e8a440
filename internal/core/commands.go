package core

import (
	"context"
	"fmt"

	"chemcore/pkg/domain"
)

// Command is a user request addressed to a dispenser.
type Command interface {
	Operation() string
}

// SetModeCommand switches between transfer and discard.
type SetModeCommand struct {
	Mode domain.Mode
}

// SetPillStyleCommand selects a pill appearance.
type SetPillStyleCommand struct {
	Style uint
}

// ReagentButtonCommand presses a reagent amount button.
type ReagentButtonCommand struct {
	ReagentID  string
	Amount     domain.ReagentAmount
	FromBuffer bool
}

// CreatePillsCommand produces pills into the output storage.
type CreatePillsCommand struct {
	Count  uint
	Dosage domain.Quantity
	Label  string
}

// OutputToBottleCommand fills the output bottle from the buffer.
type OutputToBottleCommand struct {
	Dosage domain.Quantity
	Label  string
}

// InsertCommand places a container into a dispenser slot.
type InsertCommand struct {
	Slot domain.SlotName
	Item domain.ContainerHandle
}

// EjectCommand removes the container held in a dispenser slot.
type EjectCommand struct {
	Slot domain.SlotName
}

// RefreshCommand re-presents the projection, as when the interface is opened.
type RefreshCommand struct{}

func (SetModeCommand) Operation() string        { return opSetMode }
func (SetPillStyleCommand) Operation() string   { return opSetPillStyle }
func (ReagentButtonCommand) Operation() string  { return opReagentButton }
func (CreatePillsCommand) Operation() string    { return opCreatePills }
func (OutputToBottleCommand) Operation() string { return opOutputToBottle }
func (InsertCommand) Operation() string         { return opInsertSlot }
func (EjectCommand) Operation() string          { return opEjectSlot }
func (RefreshCommand) Operation() string        { return "refresh" }

// Handle dispatches cmd to the matching dispenser operation.
func (d *Dispenser) Handle(ctx context.Context, user UserHandle, cmd Command) error {
	switch c := cmd.(type) {
	case SetModeCommand:
		return d.SetMode(ctx, user, c.Mode)
	case SetPillStyleCommand:
		return d.SetPillStyle(ctx, user, c.Style)
	case ReagentButtonCommand:
		return d.ReagentButton(ctx, user, c.ReagentID, c.Amount, c.FromBuffer)
	case CreatePillsCommand:
		_, err := d.CreatePills(ctx, user, c.Count, c.Dosage, c.Label)
		return err
	case OutputToBottleCommand:
		return d.OutputToBottle(ctx, user, c.Dosage, c.Label)
	case InsertCommand:
		return d.InsertIntoSlot(ctx, user, c.Slot, c.Item)
	case EjectCommand:
		_, err := d.EjectFromSlot(ctx, user, c.Slot)
		return err
	case RefreshCommand:
		_, err := d.Refresh(ctx)
		return err
	case nil:
		return reject("handle", "nil command")
	default:
		return reject("handle", "unsupported command %s", fmt.Sprintf("%T", cmd))
	}
}

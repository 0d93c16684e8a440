package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chemcore/pkg/domain"

	"github.com/google/uuid"
)

const (
	opAttach         = "attach"
	opSetMode        = "set_mode"
	opSetPillStyle   = "set_pill_style"
	opReagentButton  = "reagent_button"
	opCreatePills    = "create_pills"
	opOutputToBottle = "output_to_bottle"
	opInsertSlot     = "insert_slot"
	opEjectSlot      = "eject_slot"
)

// Option configures a Dispenser.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger       Logger
	clock        Clock
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	labeler      Labeler
	notifier     Notifier
	acknowledger Acknowledger
	presenter    Presenter
	newID        func() string
	dosageLimit  domain.Quantity
	name         string
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:       noopLogger{},
		clock:        ClockFunc(nil),
		audit:        noopAuditRecorder{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		labeler:      ContainerLabeler{},
		notifier:     noopNotifier{},
		acknowledger: noopAcknowledger{},
		presenter:    noopPresenter{},
		newID:        uuid.NewString,
		dosageLimit:  domain.DefaultPillDosageLimit,
		name:         "ChemMaster",
	}
}

// WithLogger overrides the logger used by the dispenser.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for durations and audit timestamps.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAuditRecorder registers the audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder registers the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer registers the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithLabeler overrides how labels are applied.
func WithLabeler(labeler Labeler) Option {
	return func(o *serviceOptions) {
		if labeler != nil {
			o.labeler = labeler
		}
	}
}

// WithNotifier registers the sink for buffer failure messages.
func WithNotifier(notifier Notifier) Option {
	return func(o *serviceOptions) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithAcknowledger registers the click feedback sink.
func WithAcknowledger(ack Acknowledger) Option {
	return func(o *serviceOptions) {
		if ack != nil {
			o.acknowledger = ack
		}
	}
}

// WithPresenter registers the projection sink.
func WithPresenter(presenter Presenter) Option {
	return func(o *serviceOptions) {
		if presenter != nil {
			o.presenter = presenter
		}
	}
}

// WithIDGenerator overrides how pill handles are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithPillDosageLimit sets the dosage limit used when the dispenser record is first created.
func WithPillDosageLimit(limit domain.Quantity) Option {
	return func(o *serviceOptions) {
		if !limit.IsZero() {
			o.dosageLimit = limit
		}
	}
}

// WithName sets the display name used when the dispenser record is first created.
func WithName(name string) Option {
	return func(o *serviceOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Dispenser is the transfer engine of one chem dispenser. It moves reagents
// between the input vessel, its own uncapped buffer and the output vessel.
// Commands are serialized; each runs in a single store transaction and is
// followed by a projection refresh.
type Dispenser struct {
	store PersistentStore
	owner domain.ContainerHandle

	logger       Logger
	clock        Clock
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	labeler      Labeler
	notifier     Notifier
	acknowledger Acknowledger
	presenter    Presenter
	newID        func() string

	mu       sync.Mutex
	revision uint64
	last     domain.Projection
}

// NewDispenser attaches a dispenser to owner. The owner record is created when
// missing, its buffer solution is ensured, and an initial projection is presented.
func NewDispenser(ctx context.Context, store PersistentStore, owner domain.ContainerHandle, opts ...Option) (*Dispenser, error) {
	if store == nil {
		return nil, errors.New("dispenser requires a store")
	}
	if owner == "" {
		return nil, errors.New("dispenser requires an owner handle")
	}
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Dispenser{
		store:        store,
		owner:        owner,
		logger:       cfg.logger,
		clock:        cfg.clock,
		audit:        cfg.audit,
		metrics:      cfg.metrics,
		tracer:       cfg.tracer,
		labeler:      cfg.labeler,
		notifier:     cfg.notifier,
		acknowledger: cfg.acknowledger,
		presenter:    cfg.presenter,
		newID:        cfg.newID,
	}
	if src, ok := d.presenter.(RevisionSource); ok {
		latest, err := src.LatestRevision(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("resume projection revision: %w", err)
		}
		d.revision = latest
	}
	err := d.run(ctx, opAttach, "", func(tx domain.Transaction) error {
		return attach(tx, owner, cfg)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func attach(tx domain.Transaction, owner domain.ContainerHandle, cfg serviceOptions) error {
	current, ok := tx.FindContainer(owner)
	if !ok {
		_, err := tx.CreateContainer(domain.Container{
			Handle: owner,
			Name:   cfg.name,
			Dispenser: &domain.DispenserState{
				Mode:            domain.ModeTransfer,
				PillDosageLimit: cfg.dosageLimit,
			},
		})
		if err != nil {
			return err
		}
	} else if current.Dispenser == nil {
		if _, err := tx.UpdateContainer(owner, func(c *domain.Container) error {
			c.Dispenser = &domain.DispenserState{Mode: domain.ModeTransfer, PillDosageLimit: cfg.dosageLimit}
			return nil
		}); err != nil {
			return err
		}
	}
	_, err := tx.EnsureSolution(owner, domain.SolutionBuffer, domain.MaxQuantity)
	return err
}

// Owner returns the dispenser container handle.
func (d *Dispenser) Owner() domain.ContainerHandle { return d.owner }

// Store returns the underlying storage implementation.
func (d *Dispenser) Store() PersistentStore { return d.store }

// SetMode switches what reagent buttons do.
func (d *Dispenser) SetMode(ctx context.Context, user UserHandle, mode domain.Mode) error {
	if !mode.Valid() {
		return d.drop(ctx, opSetMode, user, reject(opSetMode, "invalid mode %d", int(mode)))
	}
	return d.run(ctx, opSetMode, user, func(tx domain.Transaction) error {
		return d.updateState(tx, func(s *domain.DispenserState) { s.Mode = mode })
	})
}

// SetPillStyle selects the appearance of produced pills.
func (d *Dispenser) SetPillStyle(ctx context.Context, user UserHandle, style uint) error {
	if style >= domain.PillStyleCount {
		return d.drop(ctx, opSetPillStyle, user, reject(opSetPillStyle, "pill style %d outside catalog of %d", style, domain.PillStyleCount))
	}
	return d.run(ctx, opSetPillStyle, user, func(tx domain.Transaction) error {
		return d.updateState(tx, func(s *domain.DispenserState) { s.PillStyle = style })
	})
}

// ReagentButton transfers or discards a preset amount of one reagent depending on the current mode.
func (d *Dispenser) ReagentButton(ctx context.Context, user UserHandle, reagentID string, amount domain.ReagentAmount, fromBuffer bool) error {
	if !amount.Valid() {
		return d.drop(ctx, opReagentButton, user, reject(opReagentButton, "unknown amount %d", int(amount)))
	}
	var updateLabel, pressed bool
	err := d.runWithLabel(ctx, opReagentButton, user, func(tx domain.Transaction) error {
		state, err := d.state(tx)
		if err != nil {
			return err
		}
		switch state.Mode {
		case domain.ModeTransfer:
			pressed, updateLabel = true, true
			return d.transfer(tx, reagentID, amount.Quantity(), fromBuffer)
		case domain.ModeDiscard:
			pressed, updateLabel = true, fromBuffer
			return d.discard(tx, reagentID, amount.Quantity(), fromBuffer)
		default:
			return reject(opReagentButton, "invalid mode %d", int(state.Mode))
		}
	}, &updateLabel)
	// A valid press clicks even when no vessel is there to act on.
	if pressed && IsRejected(err) {
		d.acknowledger.Acknowledge(ctx, d.owner)
	}
	return err
}

func (d *Dispenser) transfer(tx domain.Transaction, reagentID string, amount domain.Quantity, fromBuffer bool) error {
	input, err := d.inputSolution(tx, opReagentButton)
	if err != nil {
		return err
	}
	buffer, err := d.buffer(tx, opReagentButton)
	if err != nil {
		return err
	}
	if fromBuffer {
		amount = domain.ClampToAvailable(amount, input.AvailableVolume())
		moved := buffer.RemoveReagent(reagentID, amount)
		input.AddReagent(reagentID, moved)
		return nil
	}
	amount = domain.ClampToAvailable(amount, input.ReagentQuantity(reagentID))
	moved := input.RemoveReagent(reagentID, amount)
	buffer.AddReagent(reagentID, moved)
	return nil
}

func (d *Dispenser) discard(tx domain.Transaction, reagentID string, amount domain.Quantity, fromBuffer bool) error {
	var target *domain.Solution
	var err error
	if fromBuffer {
		target, err = d.buffer(tx, opReagentButton)
	} else {
		target, err = d.inputSolution(tx, opReagentButton)
	}
	if err != nil {
		return err
	}
	target.RemoveReagent(reagentID, amount)
	return nil
}

// CreatePills withdraws count*dosage from the buffer and splits it into count
// labeled pills stored in the output container. It returns the pill handles.
func (d *Dispenser) CreatePills(ctx context.Context, user UserHandle, count uint, dosage domain.Quantity, label string) ([]domain.ContainerHandle, error) {
	var pills []domain.ContainerHandle
	err := d.run(ctx, opCreatePills, user, func(tx domain.Transaction) error {
		pills = nil
		output, ok := tx.ItemInSlot(d.owner, domain.SlotOutput)
		if !ok {
			return reject(opCreatePills, "no output container")
		}
		container, ok := tx.FindContainer(output)
		if !ok || container.Storage == nil || container.Storage.Capacity <= 0 {
			return reject(opCreatePills, "output container %s cannot hold pills", output)
		}
		if count == 0 || count > uint(container.Storage.Free()) {
			return reject(opCreatePills, "pill count %d does not fit %d free slots", count, container.Storage.Free())
		}
		state, err := d.state(tx)
		if err != nil {
			return err
		}
		if dosage.IsZero() || dosage.GreaterThan(state.PillDosageLimit) {
			return reject(opCreatePills, "dosage %s outside (0, %s]", dosage, state.PillDosageLimit)
		}
		buffer, err := d.buffer(tx, opCreatePills)
		if err != nil {
			return err
		}
		withdrawal, err := WithdrawFromBuffer(buffer, dosage.Mul(int64(count)))
		if err != nil {
			return err
		}
		if err := d.labeler.Label(ctx, tx, output, label); err != nil {
			return err
		}
		appearance := fmt.Sprintf("pill%d", state.PillStyle+1)
		for i := uint(0); i < count; i++ {
			handle := domain.ContainerHandle("pill-" + d.newID())
			if _, err := tx.CreateContainer(domain.Container{Handle: handle, Name: "pill", Appearance: appearance}); err != nil {
				return err
			}
			if err := tx.InsertIntoStorage(output, handle); err != nil {
				return err
			}
			if err := d.labeler.Label(ctx, tx, handle, label); err != nil {
				return err
			}
			sol, err := tx.EnsureSolution(handle, domain.SolutionPill, dosage)
			if err != nil {
				return err
			}
			sol.AddSolution(withdrawal.SplitSolution(dosage))
			pills = append(pills, handle)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pills, nil
}

// OutputToBottle withdraws dosage from the buffer into the output bottle.
func (d *Dispenser) OutputToBottle(ctx context.Context, user UserHandle, dosage domain.Quantity, label string) error {
	return d.run(ctx, opOutputToBottle, user, func(tx domain.Transaction) error {
		output, ok := tx.ItemInSlot(d.owner, domain.SlotOutput)
		if !ok {
			return reject(opOutputToBottle, "no output container")
		}
		bottle, ok := tx.Solution(output, domain.SolutionBottle)
		if !ok {
			return reject(opOutputToBottle, "output container %s has no bottle solution", output)
		}
		if dosage.IsZero() || dosage.GreaterThan(bottle.AvailableVolume()) {
			return reject(opOutputToBottle, "dosage %s outside (0, %s]", dosage, bottle.AvailableVolume())
		}
		buffer, err := d.buffer(tx, opOutputToBottle)
		if err != nil {
			return err
		}
		withdrawal, err := WithdrawFromBuffer(buffer, dosage)
		if err != nil {
			return err
		}
		if err := d.labeler.Label(ctx, tx, output, label); err != nil {
			return err
		}
		bottle.AddSolution(withdrawal)
		return nil
	})
}

// WithdrawFromBuffer splits needed volume out of buffer. It fails with
// ErrBufferEmpty when the buffer holds nothing and ErrBufferInsufficient when
// it holds less than needed; buffer is unchanged on failure.
func WithdrawFromBuffer(buffer *domain.Solution, needed domain.Quantity) (*domain.Solution, error) {
	current := buffer.CurrentVolume()
	if current.IsZero() {
		return nil, &domain.BufferError{Reason: domain.ErrBufferEmpty, Needed: needed, Available: current}
	}
	if needed.GreaterThan(current) {
		return nil, &domain.BufferError{Reason: domain.ErrBufferInsufficient, Needed: needed, Available: current}
	}
	return buffer.SplitSolution(needed), nil
}

// InsertIntoSlot places item into one of the dispenser slots.
func (d *Dispenser) InsertIntoSlot(ctx context.Context, user UserHandle, slot domain.SlotName, item domain.ContainerHandle) error {
	if slot != domain.SlotInput && slot != domain.SlotOutput {
		return d.drop(ctx, opInsertSlot, user, reject(opInsertSlot, "unknown slot %q", slot))
	}
	return d.run(ctx, opInsertSlot, user, func(tx domain.Transaction) error {
		if _, ok := tx.FindContainer(item); !ok {
			return reject(opInsertSlot, "container %s does not exist", item)
		}
		if item == d.owner {
			return reject(opInsertSlot, "dispenser %s cannot hold itself", item)
		}
		if held, ok := tx.ItemInSlot(d.owner, slot); ok {
			return reject(opInsertSlot, "slot %s already holds %s", slot, held)
		}
		for _, c := range tx.Snapshot().ListContainers() {
			if where, ok := c.Holds(item); ok {
				return reject(opInsertSlot, "%s is already held in %s of %s", item, where, c.Handle)
			}
		}
		return tx.InsertIntoSlot(d.owner, slot, item)
	})
}

// EjectFromSlot removes and returns the item held in slot.
func (d *Dispenser) EjectFromSlot(ctx context.Context, user UserHandle, slot domain.SlotName) (domain.ContainerHandle, error) {
	var ejected domain.ContainerHandle
	err := d.run(ctx, opEjectSlot, user, func(tx domain.Transaction) error {
		if _, ok := tx.ItemInSlot(d.owner, slot); !ok {
			return reject(opEjectSlot, "slot %s is empty", slot)
		}
		var err error
		ejected, err = tx.EjectFromSlot(d.owner, slot)
		return err
	})
	if err != nil {
		return "", err
	}
	return ejected, nil
}

// Refresh rebuilds the projection without mutating state, as when a user opens the interface.
func (d *Dispenser) Refresh(ctx context.Context) (domain.Projection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshLocked(ctx, false)
}

// Projection returns the most recently presented projection.
func (d *Dispenser) Projection() domain.Projection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Dispenser) updateState(tx domain.Transaction, mutate func(*domain.DispenserState)) error {
	_, err := tx.UpdateContainer(d.owner, func(c *domain.Container) error {
		if c.Dispenser == nil {
			return ErrNotFound{Entity: domain.EntityContainer, ID: string(d.owner)}
		}
		mutate(c.Dispenser)
		return nil
	})
	return err
}

func (d *Dispenser) state(tx domain.Transaction) (domain.DispenserState, error) {
	c, ok := tx.FindContainer(d.owner)
	if !ok || c.Dispenser == nil {
		return domain.DispenserState{}, ErrNotFound{Entity: domain.EntityContainer, ID: string(d.owner)}
	}
	return *c.Dispenser, nil
}

func (d *Dispenser) buffer(tx domain.Transaction, op string) (*domain.Solution, error) {
	buffer, ok := tx.Solution(d.owner, domain.SolutionBuffer)
	if !ok {
		return nil, reject(op, "dispenser %s has no buffer", d.owner)
	}
	return buffer, nil
}

func (d *Dispenser) inputSolution(tx domain.Transaction, op string) (*domain.Solution, error) {
	input, ok := tx.ItemInSlot(d.owner, domain.SlotInput)
	if !ok {
		return nil, reject(op, "no input container")
	}
	container, ok := tx.FindContainer(input)
	if !ok || container.FitsSolution == "" {
		return nil, reject(op, "input container %s does not fit in the dispenser", input)
	}
	sol, ok := tx.Solution(input, container.FitsSolution)
	if !ok {
		return nil, reject(op, "input container %s has no solution %s", input, container.FitsSolution)
	}
	return sol, nil
}

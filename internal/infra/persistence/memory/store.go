// Package memory provides an in-memory implementation of the container
// registry used for tests, ephemeral environments, and as the transactional
// core of the durable backends.
package memory

import (
	"chemcore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Container aliases domain.Container for in-memory persistence operations.
	Container = domain.Container
	// ContainerHandle aliases domain.ContainerHandle.
	ContainerHandle = domain.ContainerHandle
	// Solution aliases domain.Solution.
	Solution = domain.Solution
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// ErrNotFound reports a missing container.
type ErrNotFound struct {
	Handle ContainerHandle
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("container %s not found", e.Handle)
}

type memoryState struct {
	containers map[ContainerHandle]Container
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Containers map[ContainerHandle]Container `json:"containers"`
}

func newMemoryState() memoryState {
	return memoryState{containers: make(map[ContainerHandle]Container)}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.containers {
		cloned.containers[k] = v.Clone()
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	out := Snapshot{Containers: make(map[ContainerHandle]Container, len(state.containers))}
	for k, v := range state.containers {
		out.Containers[k] = v.Clone()
	}
	return out
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snapshot.Containers {
		c := v.Clone()
		if c.Handle == "" {
			c.Handle = k
		}
		state.containers[k] = c
	}
	return state
}

func sortedContainers(state *memoryState) []Container {
	out := make([]Container, 0, len(state.containers))
	for _, c := range state.containers {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Store provides an in-memory transactional registry of containers. A single
// lock serializes transactions so each command observes and commits a
// consistent state.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider stamped onto records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// NowFunc exposes the time provider used for record timestamps.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

type transaction struct {
	store   *Store
	base    *memoryState
	state   memoryState
	changes []Change
	touched map[ContainerHandle]struct{}
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListContainers returns all containers ordered by handle.
func (v transactionView) ListContainers() []Container {
	return sortedContainers(v.state)
}

// FindContainer retrieves a container by handle from the snapshot.
func (v transactionView) FindContainer(handle ContainerHandle) (Container, bool) {
	c, ok := v.state.containers[handle]
	if !ok {
		return Container{}, false
	}
	return c.Clone(), true
}

// ItemInSlot returns the item held in the owner's slot.
func (v transactionView) ItemInSlot(owner ContainerHandle, slot domain.SlotName) (ContainerHandle, bool) {
	return itemInSlot(v.state, owner, slot)
}

func itemInSlot(state *memoryState, owner ContainerHandle, slot domain.SlotName) (ContainerHandle, bool) {
	c, ok := state.containers[owner]
	if !ok {
		return "", false
	}
	item, ok := c.Slots[slot]
	if !ok || item == "" {
		return "", false
	}
	if _, exists := state.containers[item]; !exists {
		return "", false
	}
	return item, true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store:   s,
		base:    &s.state,
		state:   s.state.clone(),
		touched: make(map[ContainerHandle]struct{}),
		now:     s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	tx.recordSolutionChanges()

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetContainer returns a committed container by handle.
func (s *Store) GetContainer(handle ContainerHandle) (Container, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.containers[handle]
	if !ok {
		return Container{}, false
	}
	return c.Clone(), true
}

// ListContainers returns all committed containers ordered by handle.
func (s *Store) ListContainers() []Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedContainers(&s.state)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// recordSolutionChanges emits one update per container whose solutions were
// handed out for mutation and still exist at commit.
func (tx *transaction) recordSolutionChanges() {
	handles := make([]ContainerHandle, 0, len(tx.touched))
	for h := range tx.touched {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		after, ok := tx.state.containers[h]
		if !ok {
			continue
		}
		change := Change{Entity: domain.EntitySolution, Action: domain.ActionUpdate, After: after.Clone()}
		if before, existed := tx.base.containers[h]; existed {
			change.Before = before.Clone()
		} else {
			change.Action = domain.ActionCreate
		}
		tx.recordChange(change)
	}
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateContainer stores a new container. The handle must be set and unused.
func (tx *transaction) CreateContainer(c Container) (Container, error) {
	if c.Handle == "" {
		return Container{}, fmt.Errorf("container handle required")
	}
	if _, exists := tx.state.containers[c.Handle]; exists {
		return Container{}, fmt.Errorf("container %q already exists", c.Handle)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.containers[c.Handle] = c.Clone()
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionCreate, After: c.Clone()})
	return c.Clone(), nil
}

// UpdateContainer mutates a container using the provided mutator function.
func (tx *transaction) UpdateContainer(handle ContainerHandle, mutator func(*Container) error) (Container, error) {
	current, ok := tx.state.containers[handle]
	if !ok {
		return Container{}, ErrNotFound{Handle: handle}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Container{}, err
	}
	current.Handle = handle
	current.UpdatedAt = tx.now
	// solution pointers handed out earlier in the transaction stay live
	tx.state.containers[handle] = current
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteContainer removes a container and clears every slot or storage reference to it.
func (tx *transaction) DeleteContainer(handle ContainerHandle) error {
	current, ok := tx.state.containers[handle]
	if !ok {
		return ErrNotFound{Handle: handle}
	}
	delete(tx.state.containers, handle)
	delete(tx.touched, handle)
	for h, c := range tx.state.containers {
		changed := false
		for slot, item := range c.Slots {
			if item == handle {
				delete(c.Slots, slot)
				changed = true
			}
		}
		if c.Storage != nil {
			kept := c.Storage.Items[:0]
			for _, item := range c.Storage.Items {
				if item != handle {
					kept = append(kept, item)
				}
			}
			if len(kept) != len(c.Storage.Items) {
				c.Storage.Items = kept
				changed = true
			}
		}
		if changed {
			c.UpdatedAt = tx.now
			tx.state.containers[h] = c
		}
	}
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// FindContainer exposes container lookup within the transaction scope.
func (tx *transaction) FindContainer(handle ContainerHandle) (Container, bool) {
	c, ok := tx.state.containers[handle]
	if !ok {
		return Container{}, false
	}
	return c.Clone(), true
}

// Solution returns the live named solution of a container.
func (tx *transaction) Solution(handle ContainerHandle, name string) (*Solution, bool) {
	c, ok := tx.state.containers[handle]
	if !ok {
		return nil, false
	}
	sol, ok := c.Solution(name)
	if !ok {
		return nil, false
	}
	tx.touched[handle] = struct{}{}
	return sol, true
}

// EnsureSolution returns the named solution, binding an empty one with the given capacity when absent.
func (tx *transaction) EnsureSolution(handle ContainerHandle, name string, maxVolume domain.Quantity) (*Solution, error) {
	c, ok := tx.state.containers[handle]
	if !ok {
		return nil, ErrNotFound{Handle: handle}
	}
	if sol, ok := c.Solution(name); ok {
		tx.touched[handle] = struct{}{}
		return sol, nil
	}
	if c.Solutions == nil {
		c.Solutions = make(map[string]*Solution)
	}
	sol := domain.NewSolution(maxVolume)
	c.Solutions[name] = sol
	c.UpdatedAt = tx.now
	tx.state.containers[handle] = c
	tx.touched[handle] = struct{}{}
	return sol, nil
}

// ItemInSlot returns the item held in the owner's slot within the transaction.
func (tx *transaction) ItemInSlot(owner ContainerHandle, slot domain.SlotName) (ContainerHandle, bool) {
	return itemInSlot(&tx.state, owner, slot)
}

// InsertIntoSlot places an existing container into an empty slot of owner.
func (tx *transaction) InsertIntoSlot(owner ContainerHandle, slot domain.SlotName, item ContainerHandle) error {
	if _, ok := tx.state.containers[item]; !ok {
		return ErrNotFound{Handle: item}
	}
	if owner == item {
		return fmt.Errorf("container %q cannot hold itself", owner)
	}
	_, err := tx.UpdateContainer(owner, func(c *Container) error {
		if held, ok := c.Slots[slot]; ok && held != "" {
			return fmt.Errorf("slot %s of %s already holds %s", slot, owner, held)
		}
		if c.Slots == nil {
			c.Slots = make(map[domain.SlotName]ContainerHandle)
		}
		c.Slots[slot] = item
		return nil
	})
	return err
}

// EjectFromSlot empties a slot and returns the handle it held.
func (tx *transaction) EjectFromSlot(owner ContainerHandle, slot domain.SlotName) (ContainerHandle, error) {
	var ejected ContainerHandle
	_, err := tx.UpdateContainer(owner, func(c *Container) error {
		held, ok := c.Slots[slot]
		if !ok || held == "" {
			return fmt.Errorf("slot %s of %s is empty", slot, owner)
		}
		ejected = held
		delete(c.Slots, slot)
		return nil
	})
	return ejected, err
}

// InsertIntoStorage appends item to the storage of handle, respecting capacity.
func (tx *transaction) InsertIntoStorage(handle ContainerHandle, item ContainerHandle) error {
	if _, ok := tx.state.containers[item]; !ok {
		return ErrNotFound{Handle: item}
	}
	_, err := tx.UpdateContainer(handle, func(c *Container) error {
		if c.Storage == nil {
			return fmt.Errorf("container %s has no storage", handle)
		}
		if c.Storage.Free() == 0 {
			return fmt.Errorf("storage of %s is full (%d/%d)", handle, c.Storage.Used(), c.Storage.Capacity)
		}
		c.Storage.Items = append(c.Storage.Items, item)
		return nil
	})
	return err
}

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"chemcore/internal/infra/persistence/memory"
	"chemcore/pkg/domain"
)

const testOwner domain.ContainerHandle = "master"

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(prefix, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, prefix+msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:", msg) }

func (c *captureLogger) has(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type notification struct {
	user UserHandle
	key  string
}

type captureNotifier struct {
	sent []notification
}

func (c *captureNotifier) Notify(_ context.Context, user UserHandle, key string) {
	c.sent = append(c.sent, notification{user: user, key: key})
}

type captureAcknowledger struct {
	clicks int
}

func (c *captureAcknowledger) Acknowledge(context.Context, domain.ContainerHandle) { c.clicks++ }

type capturePresenter struct {
	projections []domain.Projection
}

func (c *capturePresenter) Present(_ context.Context, p domain.Projection) error {
	c.projections = append(c.projections, p)
	return nil
}

func (c *capturePresenter) last(t *testing.T) domain.Projection {
	t.Helper()
	if len(c.projections) == 0 {
		t.Fatalf("no projection presented")
	}
	return c.projections[len(c.projections)-1]
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type fixture struct {
	store     *memory.Store
	dispenser *Dispenser
	notes     *captureNotifier
	acks      *captureAcknowledger
	presented *capturePresenter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     NewMemoryStore(NewDefaultRulesEngine()),
		notes:     &captureNotifier{},
		acks:      &captureAcknowledger{},
		presented: &capturePresenter{},
	}
	seq := 0
	base := []Option{
		WithNotifier(f.notes),
		WithAcknowledger(f.acks),
		WithPresenter(f.presented),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("%03d", seq)
		}),
	}
	d, err := NewDispenser(context.Background(), f.store, testOwner, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new dispenser: %v", err)
	}
	f.dispenser = d
	return f
}

func (f *fixture) create(t *testing.T, c domain.Container) {
	t.Helper()
	if _, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateContainer(c)
		return err
	}); err != nil {
		t.Fatalf("create %s: %v", c.Handle, err)
	}
}

// beaker creates a dispensable vessel holding the given reagent/quantity pairs.
func (f *fixture) beaker(t *testing.T, handle domain.ContainerHandle, max string, contents ...string) {
	t.Helper()
	sol := domain.NewSolution(domain.MustParseQuantity(max))
	for i := 0; i+1 < len(contents); i += 2 {
		sol.AddReagent(contents[i], domain.MustParseQuantity(contents[i+1]))
	}
	f.create(t, domain.Container{
		Handle:       handle,
		Name:         "beaker",
		Solutions:    map[string]*domain.Solution{"beaker": sol},
		FitsSolution: "beaker",
	})
}

func (f *fixture) bottle(t *testing.T, handle domain.ContainerHandle, max string, contents ...string) {
	t.Helper()
	sol := domain.NewSolution(domain.MustParseQuantity(max))
	for i := 0; i+1 < len(contents); i += 2 {
		sol.AddReagent(contents[i], domain.MustParseQuantity(contents[i+1]))
	}
	f.create(t, domain.Container{
		Handle:    handle,
		Name:      "bottle",
		Solutions: map[string]*domain.Solution{domain.SolutionBottle: sol},
	})
}

func (f *fixture) canister(t *testing.T, handle domain.ContainerHandle, capacity int) {
	t.Helper()
	f.create(t, domain.Container{Handle: handle, Name: "pill canister", Storage: &domain.Storage{Capacity: capacity}})
}

func (f *fixture) insert(t *testing.T, slot domain.SlotName, item domain.ContainerHandle) {
	t.Helper()
	if err := f.dispenser.InsertIntoSlot(context.Background(), "tester", slot, item); err != nil {
		t.Fatalf("insert %s into %s: %v", item, slot, err)
	}
}

func (f *fixture) eject(t *testing.T, slot domain.SlotName) {
	t.Helper()
	if _, err := f.dispenser.EjectFromSlot(context.Background(), "tester", slot); err != nil {
		t.Fatalf("eject %s: %v", slot, err)
	}
}

func (f *fixture) fillBuffer(t *testing.T, reagent, qty string) {
	t.Helper()
	if _, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		buffer, ok := tx.Solution(testOwner, domain.SolutionBuffer)
		if !ok {
			return fmt.Errorf("missing buffer")
		}
		buffer.AddReagent(reagent, domain.MustParseQuantity(qty))
		return nil
	}); err != nil {
		t.Fatalf("fill buffer: %v", err)
	}
}

func (f *fixture) solution(t *testing.T, handle domain.ContainerHandle, name string) *domain.Solution {
	t.Helper()
	c, ok := f.store.GetContainer(handle)
	if !ok {
		t.Fatalf("container %s missing", handle)
	}
	sol, ok := c.Solution(name)
	if !ok {
		t.Fatalf("solution %s of %s missing", name, handle)
	}
	return sol
}

func (f *fixture) buffer(t *testing.T) *domain.Solution {
	t.Helper()
	return f.solution(t, testOwner, domain.SolutionBuffer)
}

func (f *fixture) pillHandles() []domain.ContainerHandle {
	var out []domain.ContainerHandle
	for _, c := range f.store.ListContainers() {
		if strings.HasPrefix(string(c.Handle), "pill-") {
			out = append(out, c.Handle)
		}
	}
	return out
}

func q(s string) domain.Quantity { return domain.MustParseQuantity(s) }

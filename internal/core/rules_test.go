package core

import (
	"context"
	"errors"
	"testing"

	"chemcore/pkg/domain"
)

type staticView []domain.Container

func (v staticView) ListContainers() []domain.Container { return v }

func (v staticView) FindContainer(handle domain.ContainerHandle) (domain.Container, bool) {
	for _, c := range v {
		if c.Handle == handle {
			return c, true
		}
	}
	return domain.Container{}, false
}

func TestDefaultRulesEngineRegistersInvariants(t *testing.T) {
	var names []string
	for _, rule := range NewDefaultRulesEngine().Rules() {
		names = append(names, rule.Name())
	}
	want := []string{"solution_capacity", "storage_capacity", "volume_consistency"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if len(NewRulesEngine().Rules()) != 0 {
		t.Fatalf("expected empty engine")
	}
}

func TestSolutionCapacityRuleBlocksOverfill(t *testing.T) {
	f := newFixture(t)
	f.beaker(t, "beaker", "10", "water", "8")
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		sol, ok := tx.Solution("beaker", "beaker")
		if !ok {
			t.Fatalf("missing beaker")
		}
		sol.AddReagent("water", q("5"))
		return nil
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) || violation.Result.Violations[0].Rule != "solution_capacity" {
		t.Fatalf("expected capacity violation, got %v", err)
	}
	if got := f.solution(t, "beaker", "beaker").CurrentVolume(); got != q("8") {
		t.Fatalf("expected rollback to 8, got %s", got)
	}
}

func TestSolutionCapacityRuleIgnoresUnboundedBuffer(t *testing.T) {
	buffer := domain.NewUnboundedSolution()
	buffer.AddReagent("water", q("1000000"))
	owner := domain.Container{Handle: testOwner, Solutions: map[string]*domain.Solution{domain.SolutionBuffer: buffer}}
	res, err := NewSolutionCapacityRule().Evaluate(context.Background(), staticView{owner}, nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v / %v", res, err)
	}
}

func TestStorageCapacityRuleBlocksOverflow(t *testing.T) {
	f := newFixture(t)
	f.canister(t, "canister", 1)
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateContainer("canister", func(c *domain.Container) error {
			c.Storage.Items = append(c.Storage.Items, "a", "b")
			return nil
		})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) || violation.Result.Violations[0].Rule != "storage_capacity" {
		t.Fatalf("expected storage violation, got %v", err)
	}
	canister, _ := f.store.GetContainer("canister")
	if canister.Storage.Used() != 0 {
		t.Fatalf("expected rollback, got %d items", canister.Storage.Used())
	}
}

func TestVolumeConsistencyRule(t *testing.T) {
	sol := domain.NewSolution(q("10"))
	sol.AddReagent("a", q("2"))
	sol.AddReagent("b", q("3"))
	beaker := domain.Container{Handle: "beaker", Solutions: map[string]*domain.Solution{"beaker": sol}}
	view := staticView{beaker}

	changes := []domain.Change{
		{Entity: domain.EntitySolution, Action: domain.ActionUpdate, After: beaker},
		{Entity: domain.EntitySolution, Action: domain.ActionUpdate, After: beaker},
		{Entity: domain.EntityContainer, Action: domain.ActionDelete, After: nil},
		{Entity: domain.EntityContainer, Action: domain.ActionUpdate, After: domain.Container{Handle: "gone"}},
	}
	res, err := NewVolumeConsistencyRule().Evaluate(context.Background(), view, changes)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected consistent solution, got %+v / %v", res, err)
	}
	if msg := checkSolutionVolume(sol); msg != "" {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := checkSolutionVolume(domain.NewSolution(q("1"))); msg != "" {
		t.Fatalf("empty solution should be consistent, got %q", msg)
	}
}

func TestDispenserCommandsSatisfyDefaultRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.beaker(t, "beaker", "30", "a", "7", "b", "3")
	f.canister(t, "canister", 5)
	f.insert(t, domain.SlotInput, "beaker")
	f.insert(t, domain.SlotOutput, "canister")
	for _, id := range []string{"a", "b"} {
		if err := f.dispenser.ReagentButton(ctx, "u", id, domain.ReagentAmountAll, false); err != nil {
			t.Fatalf("transfer %s: %v", id, err)
		}
	}
	if _, err := f.dispenser.CreatePills(ctx, "u", 3, q("3"), "mix"); err != nil {
		t.Fatalf("create pills: %v", err)
	}
	res, err := NewDefaultRulesEngine().Evaluate(ctx, staticView(f.store.ListContainers()), nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected clean state, got %+v / %v", res, err)
	}
	if f.buffer(t).CurrentVolume() != q("1") {
		t.Fatalf("expected 1 unit left in buffer, got %s", f.buffer(t).CurrentVolume())
	}
}

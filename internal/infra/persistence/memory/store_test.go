package memory

import (
	"chemcore/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

func seedContainers(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateContainer(domain.Container{Handle: "master", Name: "ChemMaster"}); err != nil {
			return err
		}
		beaker := domain.NewSolution(domain.NewQuantity(50))
		beaker.AddReagent("water", domain.NewQuantity(20))
		if _, err := tx.CreateContainer(domain.Container{
			Handle:       "beaker",
			Name:         "beaker",
			Solutions:    map[string]*domain.Solution{"beaker": beaker},
			FitsSolution: "beaker",
		}); err != nil {
			return err
		}
		_, err := tx.CreateContainer(domain.Container{
			Handle:  "bottle",
			Name:    "pill bottle",
			Storage: &domain.Storage{Capacity: 1},
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	seedContainers(t, store)

	if got := len(store.ListContainers()); got != 3 {
		t.Fatalf("expected 3 containers, got %d", got)
	}
	list := store.ListContainers()
	if list[0].Handle != "beaker" || list[2].Handle != "master" {
		t.Fatalf("expected handle ordering, got %v", []domain.ContainerHandle{list[0].Handle, list[1].Handle, list[2].Handle})
	}
	beaker, ok := store.GetContainer("beaker")
	if !ok || !beaker.CreatedAt.Equal(fixed) {
		t.Fatalf("expected stamped beaker, got %+v", beaker)
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListContainers()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListContainers()) != 3 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil || store.NowFunc() == nil {
		t.Fatalf("expected engine and clock")
	}
}

func TestSolutionMutationsCommitWithTransaction(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		buffer, err := tx.EnsureSolution("master", domain.SolutionBuffer, domain.MaxQuantity)
		if err != nil {
			return err
		}
		beaker, ok := tx.Solution("beaker", "beaker")
		if !ok {
			t.Fatalf("expected beaker solution")
		}
		removed := beaker.RemoveReagent("water", domain.NewQuantity(5))
		buffer.AddReagent("water", removed)
		// later container updates must not detach earlier solution pointers
		if err := tx.InsertIntoSlot("master", domain.SlotInput, "beaker"); err != nil {
			return err
		}
		buffer.AddReagent("water", beaker.RemoveReagent("water", domain.NewQuantity(1)))
		return nil
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	master, _ := store.GetContainer("master")
	buffer, ok := master.Solution(domain.SolutionBuffer)
	if !ok || buffer.ReagentQuantity("water") != domain.NewQuantity(6) {
		t.Fatalf("expected 6 water in buffer, got %+v", buffer)
	}
	if !buffer.MaxVolume().IsUnbounded() {
		t.Fatalf("expected unbounded buffer")
	}
	beaker, _ := store.GetContainer("beaker")
	if sol, _ := beaker.FitsInDispenser(); sol.CurrentVolume() != domain.NewQuantity(14) {
		t.Fatalf("expected 14 left in beaker, got %s", sol.CurrentVolume())
	}
	if err := store.View(ctx, func(v domain.TransactionView) error {
		if item, ok := v.ItemInSlot("master", domain.SlotInput); !ok || item != "beaker" {
			t.Fatalf("expected beaker in input slot, got %q", item)
		}
		if _, ok := v.ItemInSlot("master", domain.SlotOutput); ok {
			t.Fatalf("expected empty output slot")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFailedTransactionRollsBack(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		sol, _ := tx.Solution("beaker", "beaker")
		sol.RemoveReagent("water", domain.NewQuantity(20))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	beaker, _ := store.GetContainer("beaker")
	if sol, _ := beaker.FitsInDispenser(); sol.CurrentVolume() != domain.NewQuantity(20) {
		t.Fatalf("expected rollback, got %s", sol.CurrentVolume())
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateContainer(domain.Container{Handle: "x"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(store.ListContainers()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

type recordingRule struct {
	changes []domain.Change
}

func (r *recordingRule) Name() string { return "record" }

func (r *recordingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	r.changes = append([]domain.Change(nil), changes...)
	return domain.Result{}, nil
}

func TestTouchedSolutionsAreReportedToRules(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	rec := &recordingRule{}
	store.RulesEngine().Register(rec)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		sol, _ := tx.Solution("beaker", "beaker")
		sol.AddReagent("salt", domain.NewQuantity(1))
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.changes) != 1 || rec.changes[0].Entity != domain.EntitySolution || rec.changes[0].Action != domain.ActionUpdate {
		t.Fatalf("expected one solution update, got %+v", rec.changes)
	}
	after := rec.changes[0].After.(domain.Container)
	if sol, _ := after.FitsInDispenser(); sol.ReagentQuantity("salt") != domain.NewQuantity(1) {
		t.Fatalf("expected salt in reported change")
	}
}

func TestSlotAndStorageOperations(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.InsertIntoSlot("master", domain.SlotOutput, "bottle"); err != nil {
			return err
		}
		if err := tx.InsertIntoSlot("master", domain.SlotOutput, "beaker"); err == nil {
			t.Fatalf("expected occupied slot error")
		}
		if err := tx.InsertIntoSlot("master", domain.SlotInput, "ghost"); err == nil {
			t.Fatalf("expected missing item error")
		}
		if err := tx.InsertIntoSlot("master", domain.SlotInput, "master"); err == nil {
			t.Fatalf("expected self insertion error")
		}
		if _, err := tx.CreateContainer(domain.Container{Handle: "pill-1"}); err != nil {
			return err
		}
		if _, err := tx.CreateContainer(domain.Container{Handle: "pill-2"}); err != nil {
			return err
		}
		if err := tx.InsertIntoStorage("bottle", "pill-1"); err != nil {
			return err
		}
		if err := tx.InsertIntoStorage("bottle", "pill-2"); err == nil {
			t.Fatalf("expected full storage error")
		}
		if err := tx.InsertIntoStorage("beaker", "pill-2"); err == nil {
			t.Fatalf("expected no storage error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ejected, err := tx.EjectFromSlot("master", domain.SlotOutput)
		if err != nil {
			return err
		}
		if ejected != "bottle" {
			t.Fatalf("expected bottle ejected, got %q", ejected)
		}
		if _, err := tx.EjectFromSlot("master", domain.SlotOutput); err == nil {
			t.Fatalf("expected empty slot error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("eject: %v", err)
	}
}

func TestDeleteContainerClearsReferences(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateContainer(domain.Container{Handle: "pill-1"}); err != nil {
			return err
		}
		if err := tx.InsertIntoStorage("bottle", "pill-1"); err != nil {
			return err
		}
		if err := tx.InsertIntoSlot("master", domain.SlotInput, "beaker"); err != nil {
			return err
		}
		if err := tx.DeleteContainer("pill-1"); err != nil {
			return err
		}
		if err := tx.DeleteContainer("beaker"); err != nil {
			return err
		}
		if err := tx.DeleteContainer("beaker"); err == nil {
			t.Fatalf("expected not found on second delete")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	bottle, _ := store.GetContainer("bottle")
	if bottle.Storage.Used() != 0 {
		t.Fatalf("expected storage reference removed")
	}
	master, _ := store.GetContainer("master")
	if _, ok := master.Slots[domain.SlotInput]; ok {
		t.Fatalf("expected slot reference removed")
	}
}

func TestCreateAndUpdateErrors(t *testing.T) {
	store := NewStore(nil)
	seedContainers(t, store)
	_, _ = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateContainer(domain.Container{}); err == nil {
			t.Fatalf("expected handle required")
		}
		if _, err := tx.CreateContainer(domain.Container{Handle: "beaker"}); err == nil {
			t.Fatalf("expected duplicate error")
		}
		var nf ErrNotFound
		if _, err := tx.UpdateContainer("ghost", func(*domain.Container) error { return nil }); !errors.As(err, &nf) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := tx.EnsureSolution("ghost", "x", domain.NewQuantity(1)); err == nil {
			t.Fatalf("expected ensure on missing container to fail")
		}
		if _, ok := tx.Solution("beaker", "missing"); ok {
			t.Fatalf("expected missing solution")
		}
		if _, ok := tx.FindContainer("ghost"); ok {
			t.Fatalf("expected missing container")
		}
		if len(tx.Snapshot().ListContainers()) != 3 {
			t.Fatalf("expected snapshot of three containers")
		}
		return nil
	})
}

package postgres

import (
	"chemcore/internal/infra/persistence/postgres/testutil"
	"chemcore/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestNewStoreEnsuresTableAndRoundTrips(t *testing.T) {
	db, conn := testutil.NewStateDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Statements() {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Statements())
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		sol := domain.NewSolution(domain.NewQuantity(50))
		sol.AddReagent("water", domain.NewQuantity(30))
		_, err := tx.CreateContainer(domain.Container{
			Handle:       "beaker",
			Solutions:    map[string]*domain.Solution{"beaker": sol},
			FitsSolution: "beaker",
		})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if buckets := conn.Buckets(); len(buckets) != 1 || buckets[0] != containersBucket {
		t.Fatalf("expected containers bucket persisted, got %v", buckets)
	}

	reopened, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	beaker, ok := reopened.GetContainer("beaker")
	if !ok {
		t.Fatalf("expected beaker hydrated from snapshot")
	}
	if sol, _ := beaker.FitsInDispenser(); sol.CurrentVolume() != domain.NewQuantity(30) {
		t.Fatalf("unexpected hydrated volume %s", sol.CurrentVolume())
	}
}

func TestNewStorePropagatesPingFailure(t *testing.T) {
	db, conn := testutil.NewStateDB()
	conn.FailOn(testutil.PhasePing, errors.New("connection refused"))
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("x", nil); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestPersistFailureSurfacesAfterCommit(t *testing.T) {
	db, conn := testutil.NewStateDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("x", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailOn(testutil.PhaseBegin, errors.New("begin refused"))
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateContainer(domain.Container{Handle: "a"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "begin") {
		t.Fatalf("expected begin failure, got %v", err)
	}
}

func TestCommitFailureLeavesPreviousSnapshot(t *testing.T) {
	db, conn := testutil.NewStateDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("x", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	create := func(handle domain.ContainerHandle) error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateContainer(domain.Container{Handle: handle})
			return err
		})
		return err
	}
	if err := create("first"); err != nil {
		t.Fatalf("create first: %v", err)
	}
	before, _ := conn.Bucket(containersBucket)

	conn.FailOn(testutil.PhaseCommit, errors.New("serialization failure"))
	if err := create("second"); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	after, _ := conn.Bucket(containersBucket)
	if string(after) != string(before) {
		t.Fatalf("uncommitted snapshot leaked: %s", after)
	}
}

func TestNewStoreSurfacesLoadFailure(t *testing.T) {
	db, conn := testutil.NewStateDB()
	conn.FailOn(testutil.PhaseQuery, errors.New("relation missing"))
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("x", nil); err == nil || !strings.Contains(err.Error(), "select state") {
		t.Fatalf("expected select failure, got %v", err)
	}
}

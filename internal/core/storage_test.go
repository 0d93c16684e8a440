package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"chemcore/internal/infra/persistence/memory"
	"chemcore/internal/infra/persistence/sqlite"
	"chemcore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	mem, err := OpenPersistentStore(StorageOptions{Driver: StorageMemory}, nil)
	if err != nil || mem == nil {
		t.Fatalf("memory store: %v", err)
	}
	memStore, ok := mem.(*memory.Store)
	if !ok || len(memStore.RulesEngine().Rules()) != 3 {
		t.Fatalf("expected default rules on memory store")
	}

	path := filepath.Join(t.TempDir(), "chem.db")
	store, err := OpenPersistentStore(StorageOptions{SQLitePath: path}, NewRulesEngine())
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	sqliteStore, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite default, got %T", store)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })
	if sqliteStore.Path() != path {
		t.Fatalf("unexpected path %s", sqliteStore.Path())
	}

	if _, err := OpenPersistentStore(StorageOptions{Driver: "mongo"}, nil); err == nil || !strings.Contains(err.Error(), "memory, postgres, sqlite") {
		t.Fatalf("expected unknown driver error listing drivers, got %v", err)
	}
	if err := CloseStore(mem); err != nil {
		t.Fatalf("closing a memory store is a no-op, got %v", err)
	}
}

func TestDispenserStateSurvivesSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chem.db")
	ctx := context.Background()

	store, err := OpenPersistentStore(StorageOptions{Driver: StorageSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d, err := NewDispenser(ctx, store, testOwner, WithPillDosageLimit(q("30")))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := d.SetMode(ctx, "u", domain.ModeDiscard); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		buffer, _ := tx.Solution(testOwner, domain.SolutionBuffer)
		buffer.AddReagent("water", q("12.5"))
		return nil
	}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := CloseStore(store); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(StorageOptions{Driver: "SQLite ", SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = CloseStore(reopened) })
	again, err := NewDispenser(ctx, reopened, testOwner)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	proj := again.Projection()
	if proj.Mode != domain.ModeDiscard || proj.PillDosageLimit != q("30") || proj.BufferCurrentVolume != q("12.5") {
		t.Fatalf("unexpected projection after reopen %+v", proj)
	}
}

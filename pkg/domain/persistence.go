package domain

import "context"

// Transaction exposes the container registry operations that a persistence
// implementation must support within an atomic scope. Solutions returned by
// Solution and EnsureSolution are live within the transaction: mutations made
// through them commit or roll back with it.
type Transaction interface {
	Snapshot() TransactionView
	CreateContainer(Container) (Container, error)
	UpdateContainer(handle ContainerHandle, mutator func(*Container) error) (Container, error)
	DeleteContainer(handle ContainerHandle) error
	FindContainer(handle ContainerHandle) (Container, bool)
	Solution(handle ContainerHandle, name string) (*Solution, bool)
	EnsureSolution(handle ContainerHandle, name string, maxVolume Quantity) (*Solution, error)
	ItemInSlot(owner ContainerHandle, slot SlotName) (ContainerHandle, bool)
	InsertIntoSlot(owner ContainerHandle, slot SlotName, item ContainerHandle) error
	EjectFromSlot(owner ContainerHandle, slot SlotName) (ContainerHandle, error)
	InsertIntoStorage(handle ContainerHandle, item ContainerHandle) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ItemInSlot(owner ContainerHandle, slot SlotName) (ContainerHandle, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetContainer(handle ContainerHandle) (Container, bool)
	ListContainers() []Container
}

package core

import (
	"context"
	"fmt"

	"chemcore/pkg/domain"
)

// NewStorageCapacityRule returns the rule blocking storages holding more items than slots.
func NewStorageCapacityRule() domain.Rule {
	return storageCapacityRule{}
}

type storageCapacityRule struct{}

func (storageCapacityRule) Name() string { return "storage_capacity" }

func (storageCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, container := range view.ListContainers() {
		if container.Storage == nil {
			continue
		}
		if used := container.Storage.Used(); used > container.Storage.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "storage_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("storage of %s over capacity: %d/%d items", container.Handle, used, container.Storage.Capacity),
				Entity:   domain.EntityContainer,
				EntityID: string(container.Handle),
			})
		}
	}
	return res, nil
}

package core

import (
	"context"
	"fmt"

	"chemcore/pkg/domain"
)

// NewVolumeConsistencyRule returns the rule checking that every solution volume equals the sum of its entries.
func NewVolumeConsistencyRule() domain.Rule {
	return volumeConsistencyRule{}
}

type volumeConsistencyRule struct{}

func (volumeConsistencyRule) Name() string { return "volume_consistency" }

// Evaluate only inspects containers touched by the transaction.
func (volumeConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[domain.ContainerHandle]bool)
	for _, change := range changes {
		after, ok := change.After.(domain.Container)
		if !ok || seen[after.Handle] {
			continue
		}
		seen[after.Handle] = true
		container, ok := view.FindContainer(after.Handle)
		if !ok {
			continue
		}
		for _, name := range container.SolutionNames() {
			sol, _ := container.Solution(name)
			if msg := checkSolutionVolume(sol); msg != "" {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "volume_consistency",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("solution %s of %s: %s", name, container.Handle, msg),
					Entity:   domain.EntitySolution,
					EntityID: string(container.Handle),
				})
			}
		}
	}
	return res, nil
}

func checkSolutionVolume(sol *domain.Solution) string {
	var sum domain.Quantity
	for _, entry := range sol.Contents() {
		if entry.Quantity.IsZero() {
			return fmt.Sprintf("zero entry %s", entry.ReagentID)
		}
		sum = sum.Add(entry.Quantity)
	}
	if sum != sol.CurrentVolume() {
		return fmt.Sprintf("volume %s does not match entries %s", sol.CurrentVolume(), sum)
	}
	return ""
}

package core

import (
	"context"
	"fmt"

	"chemcore/pkg/domain"
)

// NewSolutionCapacityRule returns the in-transaction rule blocking any solution filled past its capacity.
func NewSolutionCapacityRule() domain.Rule {
	return solutionCapacityRule{}
}

type solutionCapacityRule struct{}

func (solutionCapacityRule) Name() string { return "solution_capacity" }

func (solutionCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, container := range view.ListContainers() {
		for _, name := range container.SolutionNames() {
			sol, _ := container.Solution(name)
			if sol.CurrentVolume().GreaterThan(sol.MaxVolume()) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "solution_capacity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("solution %s of %s over capacity: %s/%s", name, container.Handle, sol.CurrentVolume(), sol.MaxVolume()),
					Entity:   domain.EntitySolution,
					EntityID: string(container.Handle),
				})
			}
		}
	}
	return res, nil
}

package core

import "chemcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Container          = domain.Container
	ContainerHandle    = domain.ContainerHandle
	Solution           = domain.Solution
	Quantity           = domain.Quantity
	Projection         = domain.Projection
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
)

const (
	EntityContainer = domain.EntityContainer
	EntitySolution  = domain.EntitySolution
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

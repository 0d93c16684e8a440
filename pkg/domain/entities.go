// Package domain defines the reagent solution model, container records, and
// the rule evaluation primitives used by chemcore.
package domain

import (
	"sort"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityContainer identifies a container record (vessel, dispenser, pill).
	EntityContainer EntityType = "container"
	// EntitySolution identifies a named solution held by a container.
	EntitySolution EntityType = "solution"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// ContainerHandle is an opaque identifier for an entity or slot item.
type ContainerHandle string

// SlotName names an item slot on a container.
type SlotName string

// Item slots exposed by a dispenser.
const (
	SlotInput  SlotName = "input"
	SlotOutput SlotName = "output"
)

// Well-known solution names.
const (
	SolutionBuffer = "buffer"
	SolutionBottle = "bottle"
	SolutionPill   = "pill"
)

// Storage is a bounded collection of discrete sub-containers (pills in a canister).
type Storage struct {
	Capacity int               `json:"capacity"`
	Items    []ContainerHandle `json:"items"`
}

// Used returns the number of occupied storage slots.
func (s *Storage) Used() int { return len(s.Items) }

// Free returns the remaining storage slots, never negative.
func (s *Storage) Free() int {
	if free := s.Capacity - len(s.Items); free > 0 {
		return free
	}
	return 0
}

// Container binds a handle to its named solutions and capabilities.
type Container struct {
	Handle     ContainerHandle `json:"handle"`
	Name       string          `json:"name"`
	Label      string          `json:"label,omitempty"`
	Appearance string          `json:"appearance,omitempty"`
	// Solutions holds every named solution bound to the container.
	Solutions map[string]*Solution `json:"solutions,omitempty"`
	// FitsSolution names the solution a dispenser may draw from or fill ("fits in dispenser").
	FitsSolution string                       `json:"fits_solution,omitempty"`
	Storage      *Storage                     `json:"storage,omitempty"`
	Slots        map[SlotName]ContainerHandle `json:"slots,omitempty"`
	// Dispenser is set on containers that run a dispenser controller.
	Dispenser *DispenserState `json:"dispenser,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Solution returns the named solution if bound.
func (c Container) Solution(name string) (*Solution, bool) {
	sol, ok := c.Solutions[name]
	if !ok || sol == nil {
		return nil, false
	}
	return sol, true
}

// Holds reports where c keeps item: the name of a slot, or "storage".
func (c Container) Holds(item ContainerHandle) (string, bool) {
	for slot, held := range c.Slots {
		if held == item {
			return string(slot), true
		}
	}
	if c.Storage != nil {
		for _, held := range c.Storage.Items {
			if held == item {
				return "storage", true
			}
		}
	}
	return "", false
}

// FitsInDispenser returns the solution exposed to dispensers.
func (c Container) FitsInDispenser() (*Solution, bool) {
	if c.FitsSolution == "" {
		return nil, false
	}
	return c.Solution(c.FitsSolution)
}

// SolutionNames returns bound solution names in sorted order.
func (c Container) SolutionNames() []string {
	names := make([]string, 0, len(c.Solutions))
	for name := range c.Solutions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy safe to mutate independently.
func (c Container) Clone() Container {
	cp := c
	if c.Solutions != nil {
		cp.Solutions = make(map[string]*Solution, len(c.Solutions))
		for name, sol := range c.Solutions {
			cp.Solutions[name] = sol.Clone()
		}
	}
	if c.Storage != nil {
		st := *c.Storage
		st.Items = append([]ContainerHandle(nil), c.Storage.Items...)
		cp.Storage = &st
	}
	if c.Dispenser != nil {
		state := *c.Dispenser
		cp.Dispenser = &state
	}
	if c.Slots != nil {
		cp.Slots = make(map[SlotName]ContainerHandle, len(c.Slots))
		for slot, handle := range c.Slots {
			cp.Slots[slot] = handle
		}
	}
	return cp
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool { return len(r.Blocking()) > 0 }

// Blocking returns the violations that abort a transaction.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	blocking := e.Result.Blocking()
	if len(blocking) == 0 {
		return "transaction blocked by rules"
	}
	parts := make([]string, 0, len(blocking))
	for _, v := range blocking {
		parts = append(parts, v.Rule+": "+v.Message)
	}
	return "transaction blocked by rules: " + strings.Join(parts, "; ")
}

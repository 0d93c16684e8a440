// Package commands reads dispenser commands encoded as JSON lines and applies
// them to a dispenser.
package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"chemcore/internal/core"
	"chemcore/pkg/domain"
)

// Op names accepted in the "op" field.
const (
	OpSetMode         = "set_mode"
	OpSetPillStyle    = "set_pill_style"
	OpReagentButton   = "reagent_button"
	OpCreatePills     = "create_pills"
	OpOutputToBottle  = "output_to_bottle"
	OpInsert          = "insert"
	OpEject           = "eject"
	OpRefresh         = "refresh"
	OpCreateContainer = "create_container"
)

// Envelope is the wire form of one command line. Only the fields relevant to
// Op are read.
type Envelope struct {
	Op         string          `json:"op"`
	User       string          `json:"user,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Style      uint            `json:"style,omitempty"`
	Reagent    string          `json:"reagent,omitempty"`
	Amount     string          `json:"amount,omitempty"`
	FromBuffer bool            `json:"from_buffer,omitempty"`
	Count      uint            `json:"count,omitempty"`
	Dosage     domain.Quantity `json:"dosage,omitempty"`
	Label      string          `json:"label,omitempty"`
	Slot       string          `json:"slot,omitempty"`
	Item       string          `json:"item,omitempty"`
	Container  *ContainerSpec  `json:"container,omitempty"`
}

// ContainerSpec seeds a container that can later be inserted into a slot.
type ContainerSpec struct {
	Handle          string                      `json:"handle"`
	Name            string                      `json:"name"`
	Label           string                      `json:"label,omitempty"`
	FitsSolution    string                      `json:"fits_solution,omitempty"`
	Solutions       map[string]*domain.Solution `json:"solutions,omitempty"`
	StorageCapacity int                         `json:"storage_capacity,omitempty"`
}

// Container converts the spec into a domain container.
func (s ContainerSpec) Container() (domain.Container, error) {
	if strings.TrimSpace(s.Handle) == "" {
		return domain.Container{}, fmt.Errorf("container handle required")
	}
	if s.FitsSolution != "" {
		if _, ok := s.Solutions[s.FitsSolution]; !ok {
			return domain.Container{}, fmt.Errorf("container %s: fits solution %q not defined", s.Handle, s.FitsSolution)
		}
	}
	if s.StorageCapacity < 0 {
		return domain.Container{}, fmt.Errorf("container %s: negative storage capacity", s.Handle)
	}
	c := domain.Container{
		Handle:       domain.ContainerHandle(s.Handle),
		Name:         s.Name,
		Label:        s.Label,
		FitsSolution: s.FitsSolution,
	}
	if c.Name == "" {
		c.Name = s.Handle
	}
	if len(s.Solutions) > 0 {
		c.Solutions = make(map[string]*domain.Solution, len(s.Solutions))
		for name, sol := range s.Solutions {
			if sol == nil {
				return domain.Container{}, fmt.Errorf("container %s: solution %q is empty", s.Handle, name)
			}
			c.Solutions[name] = sol.Clone()
		}
	}
	if s.StorageCapacity > 0 {
		c.Storage = &domain.Storage{Capacity: s.StorageCapacity}
	}
	return c, nil
}

// Decode parses one JSON line.
func Decode(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode command: %w", err)
	}
	env.Op = strings.ToLower(strings.TrimSpace(env.Op))
	if env.Op == "" {
		return Envelope{}, fmt.Errorf("decode command: op required")
	}
	return env, nil
}

// Command maps the envelope onto a dispenser command. create_container has no
// dispenser command and is handled by the Processor directly.
func (e Envelope) Command() (core.Command, error) {
	switch e.Op {
	case OpSetMode:
		mode, err := domain.ParseMode(e.Mode)
		if err != nil {
			return nil, err
		}
		return core.SetModeCommand{Mode: mode}, nil
	case OpSetPillStyle:
		return core.SetPillStyleCommand{Style: e.Style}, nil
	case OpReagentButton:
		amount, err := domain.ParseReagentAmount(e.Amount)
		if err != nil {
			return nil, err
		}
		return core.ReagentButtonCommand{ReagentID: e.Reagent, Amount: amount, FromBuffer: e.FromBuffer}, nil
	case OpCreatePills:
		return core.CreatePillsCommand{Count: e.Count, Dosage: e.Dosage, Label: e.Label}, nil
	case OpOutputToBottle:
		return core.OutputToBottleCommand{Dosage: e.Dosage, Label: e.Label}, nil
	case OpInsert:
		slot, err := parseSlot(e.Slot)
		if err != nil {
			return nil, err
		}
		return core.InsertCommand{Slot: slot, Item: domain.ContainerHandle(e.Item)}, nil
	case OpEject:
		slot, err := parseSlot(e.Slot)
		if err != nil {
			return nil, err
		}
		return core.EjectCommand{Slot: slot}, nil
	case OpRefresh:
		return core.RefreshCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", e.Op)
	}
}

func parseSlot(s string) (domain.SlotName, error) {
	switch slot := domain.SlotName(strings.ToLower(strings.TrimSpace(s))); slot {
	case domain.SlotInput, domain.SlotOutput:
		return slot, nil
	default:
		return "", fmt.Errorf("unknown slot %q", s)
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects what the reagent buttons of a dispenser do.
type Mode int

// Dispenser modes.
const (
	ModeTransfer Mode = iota
	ModeDiscard
)

// Valid reports whether m is a defined mode.
func (m Mode) Valid() bool { return m == ModeTransfer || m == ModeDiscard }

func (m Mode) String() string {
	switch m {
	case ModeTransfer:
		return "transfer"
	case ModeDiscard:
		return "discard"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps "transfer" or "discard" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transfer":
		return ModeTransfer, nil
	case "discard":
		return ModeDiscard, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// ReagentAmount enumerates the preset reagent button amounts.
type ReagentAmount int

// Preset amounts. ReagentAmountAll moves as much as the constraints allow.
const (
	ReagentAmountAll ReagentAmount = -1
	ReagentAmount1   ReagentAmount = 1
	ReagentAmount5   ReagentAmount = 5
	ReagentAmount10  ReagentAmount = 10
	ReagentAmount25  ReagentAmount = 25
)

// ReagentAmounts lists every preset in button order.
var ReagentAmounts = []ReagentAmount{ReagentAmount1, ReagentAmount5, ReagentAmount10, ReagentAmount25, ReagentAmountAll}

// Valid reports whether a is one of the presets.
func (a ReagentAmount) Valid() bool {
	for _, preset := range ReagentAmounts {
		if a == preset {
			return true
		}
	}
	return false
}

// Quantity returns the preset as a volume.
func (a ReagentAmount) Quantity() Quantity {
	if a == ReagentAmountAll {
		return MaxQuantity
	}
	return NewQuantity(int64(a))
}

func (a ReagentAmount) String() string {
	if a == ReagentAmountAll {
		return "all"
	}
	return fmt.Sprintf("%du", int(a))
}

// ParseReagentAmount maps "1", "5", "10", "25" or "all" to a preset.
func ParseReagentAmount(s string) (ReagentAmount, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "u")
	if s == "all" {
		return ReagentAmountAll, nil
	}
	for _, preset := range ReagentAmounts {
		if fmt.Sprint(int(preset)) == s {
			return preset, nil
		}
	}
	return 0, fmt.Errorf("unknown reagent amount %q", s)
}

// PillStyleCount is the size of the pill appearance catalog.
const PillStyleCount = 20

// DefaultPillDosageLimit caps the volume of a single pill.
var DefaultPillDosageLimit = NewQuantity(50)

// DispenserState is the controller configuration owned by one dispenser.
type DispenserState struct {
	Mode            Mode     `json:"mode"`
	PillStyle       uint     `json:"pill_style"`
	PillDosageLimit Quantity `json:"pill_dosage_limit"`
}

// Buffer withdrawal failures surfaced to the requesting user.
var (
	ErrBufferEmpty        = errors.New("buffer is empty")
	ErrBufferInsufficient = errors.New("buffer holds less than requested")
)

// Notification message keys for buffer failures.
const (
	MessageBufferEmpty = "dispenser-buffer-empty"
	MessageBufferLow   = "dispenser-buffer-low"
)

// BufferError describes a failed withdrawal from the buffer.
type BufferError struct {
	Reason    error
	Needed    Quantity
	Available Quantity
}

func (e *BufferError) Error() string {
	return fmt.Sprintf("withdraw %s from buffer (holding %s): %v", e.Needed, e.Available, e.Reason)
}

// Unwrap exposes the sentinel reason for errors.Is.
func (e *BufferError) Unwrap() error { return e.Reason }

// MessageKey returns the notification key matching the failure.
func (e *BufferError) MessageKey() string {
	if errors.Is(e.Reason, ErrBufferEmpty) {
		return MessageBufferEmpty
	}
	return MessageBufferLow
}

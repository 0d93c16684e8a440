package domain

import "encoding/json"

// ReagentEntry pairs an opaque reagent identifier with an amount.
type ReagentEntry struct {
	ReagentID string   `json:"reagent_id"`
	Quantity  Quantity `json:"quantity"`
}

// Solution is the capacity-bounded, insertion-ordered contents of one container.
// Entries are unique by reagent id and never hold a zero quantity.
// The cached volume always equals the sum of entry quantities.
type Solution struct {
	contents  []ReagentEntry
	maxVolume Quantity
	volume    Quantity
}

// NewSolution returns an empty solution with the given capacity.
func NewSolution(maxVolume Quantity) *Solution {
	return &Solution{maxVolume: maxVolume}
}

// NewUnboundedSolution returns an empty solution without a practical capacity.
func NewUnboundedSolution() *Solution {
	return &Solution{maxVolume: MaxQuantity}
}

// MaxVolume returns the capacity ceiling.
func (s *Solution) MaxVolume() Quantity { return s.maxVolume }

// CurrentVolume returns the total volume held.
func (s *Solution) CurrentVolume() Quantity { return s.volume }

// AvailableVolume returns the free capacity, never negative.
func (s *Solution) AvailableVolume() Quantity { return s.maxVolume.Sub(s.volume) }

// Len returns the number of distinct reagents.
func (s *Solution) Len() int { return len(s.contents) }

// Contents returns a copy of the entries in insertion order.
func (s *Solution) Contents() []ReagentEntry {
	out := make([]ReagentEntry, len(s.contents))
	copy(out, s.contents)
	return out
}

func (s *Solution) indexOf(reagentID string) int {
	for i, entry := range s.contents {
		if entry.ReagentID == reagentID {
			return i
		}
	}
	return -1
}

// ReagentQuantity returns the amount of reagentID held, zero if absent.
func (s *Solution) ReagentQuantity(reagentID string) Quantity {
	if i := s.indexOf(reagentID); i >= 0 {
		return s.contents[i].Quantity
	}
	return ZeroQuantity
}

// AddReagent increases reagentID by qty, appending a new entry when absent.
// Capacity is not checked here; callers clamp before adding.
func (s *Solution) AddReagent(reagentID string, qty Quantity) {
	if qty.IsZero() {
		return
	}
	if i := s.indexOf(reagentID); i >= 0 {
		s.contents[i].Quantity = s.contents[i].Quantity.Add(qty)
	} else {
		s.contents = append(s.contents, ReagentEntry{ReagentID: reagentID, Quantity: qty})
	}
	s.volume = s.volume.Add(qty)
}

// RemoveReagent removes up to qty of reagentID and returns the amount actually removed.
// Entries reaching zero are pruned.
func (s *Solution) RemoveReagent(reagentID string, qty Quantity) Quantity {
	i := s.indexOf(reagentID)
	if i < 0 || qty.IsZero() {
		return ZeroQuantity
	}
	removed := s.contents[i].Quantity.Min(qty)
	s.contents[i].Quantity = s.contents[i].Quantity.Sub(removed)
	if s.contents[i].Quantity.IsZero() {
		s.contents = append(s.contents[:i], s.contents[i+1:]...)
	}
	s.volume = s.volume.Sub(removed)
	return removed
}

// SplitSolution removes exactly min(qty, CurrentVolume) and returns it as a new
// solution whose capacity equals the removed volume. Each reagent gives up its
// proportional share; the rounding remainder is drawn one resolution step at a
// time from the earliest entries.
func (s *Solution) SplitSolution(qty Quantity) *Solution {
	want := qty.Min(s.volume)
	out := NewSolution(want)
	if want.IsZero() {
		return out
	}
	if want == s.volume {
		out.contents = s.contents
		out.volume = s.volume
		s.contents = nil
		s.volume = ZeroQuantity
		return out
	}

	total := s.volume.raw
	shares := make([]int64, len(s.contents))
	var assigned int64
	for i, entry := range s.contents {
		shares[i] = mulDiv(entry.Quantity.raw, want.raw, total)
		assigned += shares[i]
	}
	for i := range shares {
		if assigned == want.raw {
			break
		}
		if shares[i] < s.contents[i].Quantity.raw {
			shares[i]++
			assigned++
		}
	}

	ids := make([]string, len(s.contents))
	for i, entry := range s.contents {
		ids[i] = entry.ReagentID
	}
	for i, id := range ids {
		out.AddReagent(id, s.RemoveReagent(id, QuantityFromRaw(shares[i])))
	}
	return out
}

// AddSolution merges every entry of other into s. Capacity is not checked.
func (s *Solution) AddSolution(other *Solution) {
	if other == nil {
		return
	}
	for _, entry := range other.contents {
		s.AddReagent(entry.ReagentID, entry.Quantity)
	}
}

// Clone returns an independent deep copy.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	cp := *s
	cp.contents = s.Contents()
	return &cp
}

type solutionPayload struct {
	MaxVolume Quantity       `json:"max_volume"`
	Contents  []ReagentEntry `json:"contents"`
}

// MarshalJSON serialises capacity and entries; the volume is derived on load.
func (s *Solution) MarshalJSON() ([]byte, error) {
	return json.Marshal(solutionPayload{MaxVolume: s.maxVolume, Contents: s.Contents()})
}

// UnmarshalJSON rebuilds the solution, merging duplicate ids and dropping zero entries.
func (s *Solution) UnmarshalJSON(data []byte) error {
	var payload solutionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*s = Solution{maxVolume: payload.MaxVolume}
	for _, entry := range payload.Contents {
		s.AddReagent(entry.ReagentID, entry.Quantity)
	}
	return nil
}

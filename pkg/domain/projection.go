package domain

// ContainerKind tags which capability a container summary describes.
type ContainerKind string

// Container summary variants.
const (
	ContainerKindSolution ContainerKind = "solution"
	ContainerKindStorage  ContainerKind = "storage"
)

// ItemEntry summarizes one discrete item held in a storage.
type ItemEntry struct {
	Name     string   `json:"name"`
	Quantity Quantity `json:"quantity"`
}

// ContainerInfo summarizes an input or output container for presentation.
// Solution summaries fill the volume fields and Reagents; storage summaries
// fill the slot counts and Items.
type ContainerInfo struct {
	Kind          ContainerKind  `json:"kind"`
	DisplayName   string         `json:"display_name"`
	CurrentVolume Quantity       `json:"current_volume"`
	MaxVolume     Quantity       `json:"max_volume"`
	Reagents      []ReagentEntry `json:"reagents,omitempty"`
	StorageUsed   int            `json:"storage_used,omitempty"`
	StorageMax    int            `json:"storage_max,omitempty"`
	Items         []ItemEntry    `json:"items,omitempty"`
}

// HoldsReagents reports whether the summary describes a single solution.
func (i ContainerInfo) HoldsReagents() bool { return i.Kind == ContainerKindSolution }

// SolutionInfo summarizes a bounded solution.
func SolutionInfo(name string, sol *Solution) *ContainerInfo {
	return &ContainerInfo{
		Kind:          ContainerKindSolution,
		DisplayName:   name,
		CurrentVolume: sol.CurrentVolume(),
		MaxVolume:     sol.MaxVolume(),
		Reagents:      sol.Contents(),
	}
}

// Projection is the immutable read model handed to the presentation layer.
type Projection struct {
	Owner               ContainerHandle `json:"owner"`
	Mode                Mode            `json:"mode"`
	Input               *ContainerInfo  `json:"input"`
	Output              *ContainerInfo  `json:"output"`
	BufferReagents      []ReagentEntry  `json:"buffer_reagents"`
	BufferCurrentVolume Quantity        `json:"buffer_current_volume"`
	PillStyle           uint            `json:"pill_style"`
	PillDosageLimit     Quantity        `json:"pill_dosage_limit"`
	UpdateLabel         bool            `json:"update_label"`
	Revision            uint64          `json:"revision"`
}

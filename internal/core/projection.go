package core

import (
	"fmt"

	"chemcore/pkg/domain"
)

// BuildProjection derives the read model of the dispenser owned by owner.
func BuildProjection(view domain.TransactionView, owner domain.ContainerHandle) (domain.Projection, error) {
	dispenser, ok := view.FindContainer(owner)
	if !ok || dispenser.Dispenser == nil {
		return domain.Projection{}, ErrNotFound{Entity: domain.EntityContainer, ID: string(owner)}
	}
	buffer, ok := dispenser.Solution(domain.SolutionBuffer)
	if !ok {
		return domain.Projection{}, ErrNotFound{Entity: domain.EntitySolution, ID: string(owner) + "/" + domain.SolutionBuffer}
	}
	proj := domain.Projection{
		Owner:               owner,
		Mode:                dispenser.Dispenser.Mode,
		BufferReagents:      buffer.Contents(),
		BufferCurrentVolume: buffer.CurrentVolume(),
		PillStyle:           dispenser.Dispenser.PillStyle,
		PillDosageLimit:     dispenser.Dispenser.PillDosageLimit,
	}
	if item, ok := view.ItemInSlot(owner, domain.SlotInput); ok {
		proj.Input = inputInfo(view, item)
	}
	if item, ok := view.ItemInSlot(owner, domain.SlotOutput); ok {
		proj.Output = outputInfo(view, item)
	}
	return proj, nil
}

func inputInfo(view domain.TransactionView, handle domain.ContainerHandle) *domain.ContainerInfo {
	container, ok := view.FindContainer(handle)
	if !ok {
		return nil
	}
	sol, ok := container.FitsInDispenser()
	if !ok {
		return nil
	}
	return domain.SolutionInfo(displayName(container), sol)
}

// outputInfo prefers the bottle solution and falls back to pill storage.
func outputInfo(view domain.TransactionView, handle domain.ContainerHandle) *domain.ContainerInfo {
	container, ok := view.FindContainer(handle)
	if !ok {
		return nil
	}
	name := displayName(container)
	if sol, ok := container.Solution(domain.SolutionBottle); ok {
		return domain.SolutionInfo(name, sol)
	}
	if container.Storage == nil {
		return nil
	}
	items := make([]domain.ItemEntry, 0, len(container.Storage.Items))
	for _, itemHandle := range container.Storage.Items {
		entry := domain.ItemEntry{Name: string(itemHandle)}
		if item, ok := view.FindContainer(itemHandle); ok {
			entry.Name = displayName(item)
			if sol, ok := item.Solution(domain.SolutionPill); ok {
				entry.Quantity = sol.CurrentVolume()
			}
		}
		items = append(items, entry)
	}
	return &domain.ContainerInfo{
		Kind:        domain.ContainerKindStorage,
		DisplayName: name,
		StorageUsed: container.Storage.Used(),
		StorageMax:  container.Storage.Capacity,
		Items:       items,
	}
}

// displayName renders "name (label)" the way labeled items are shown.
func displayName(c domain.Container) string {
	name := c.Name
	if name == "" {
		name = string(c.Handle)
	}
	if c.Label == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, c.Label)
}

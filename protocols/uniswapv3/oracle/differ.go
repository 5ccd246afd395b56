package oracle

// Diff is the set of changes that turns one Snapshot into another. The control
// integers are always carried; slots are only listed when their word changed.
type Diff struct {
	Index           uint16   `json:"index"`
	Cardinality     uint16   `json:"cardinality"`
	CardinalityNext uint16   `json:"cardinalityNext"`
	Updates         []Slot   `json:"updates,omitempty"`
	Deletions       []uint16 `json:"deletions,omitempty"`
}

// Touches reports whether the diff changes any slot.
func (d Diff) Touches() bool {
	return len(d.Updates) != 0 || len(d.Deletions) != 0
}

// Differ computes the Diff from old to new. Both snapshots are expected to
// have their slots ordered by index, as State.Snapshot produces them.
func Differ(old, new Snapshot) Diff {
	diff := Diff{
		Index:           new.Index,
		Cardinality:     new.Cardinality,
		CardinalityNext: new.CardinalityNext,
	}

	// merge walk over the two ordered slot lists
	i, j := 0, 0
	for i < len(old.Slots) || j < len(new.Slots) {
		switch {
		case j == len(new.Slots) || (i < len(old.Slots) && old.Slots[i].Index < new.Slots[j].Index):
			diff.Deletions = append(diff.Deletions, old.Slots[i].Index)
			i++
		case i == len(old.Slots) || new.Slots[j].Index < old.Slots[i].Index:
			diff.Updates = append(diff.Updates, new.Slots[j])
			j++
		default:
			if old.Slots[i].Word != new.Slots[j].Word {
				diff.Updates = append(diff.Updates, new.Slots[j])
			}
			i++
			j++
		}
	}
	return diff
}

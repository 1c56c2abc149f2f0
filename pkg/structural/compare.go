package structural

// Diff describes the structural difference between two snapshots of the
// same file. "Modified" means the element's line-span length changed; this
// is a deliberate line-count heuristic, not a semantic diff.
type Diff struct {
	FilePath         string
	FunctionsAdded   []string
	FunctionsRemoved []string
	FunctionsChanged []string
	ClassesAdded     []string
	ClassesRemoved   []string
	ClassesChanged   []string
	ImportsAdded     []string
	ImportsRemoved   []string
	LinesChanged     int
	ComplexityDelta  int
}

// Compare diffs two snapshots of one file (old revision vs new revision).
func Compare(oldSnap, newSnap *Snapshot) *Diff {
	diff := &Diff{
		FilePath:        newSnap.FilePath,
		LinesChanged:    abs(newSnap.TotalLines - oldSnap.TotalLines),
		ComplexityDelta: newSnap.ComplexityScore - oldSnap.ComplexityScore,
	}

	diff.FunctionsAdded, diff.FunctionsRemoved, diff.FunctionsChanged =
		compareElements(oldSnap.Functions, newSnap.Functions)
	diff.ClassesAdded, diff.ClassesRemoved, diff.ClassesChanged =
		compareElements(oldSnap.Classes, newSnap.Classes)
	diff.ImportsAdded, diff.ImportsRemoved = compareImports(oldSnap.Imports, newSnap.Imports)

	return diff
}

// ChangedElements returns the union of all added, removed and modified
// element names in the diff.
func (d *Diff) ChangedElements() map[string]struct{} {
	changed := make(map[string]struct{})

	for _, names := range [][]string{
		d.FunctionsAdded, d.FunctionsRemoved, d.FunctionsChanged,
		d.ClassesAdded, d.ClassesRemoved, d.ClassesChanged,
	} {
		for _, name := range names {
			changed[name] = struct{}{}
		}
	}

	return changed
}

// compareElements matches elements by name across two revisions, preserving
// the new revision's element order for added/modified entries and the old
// revision's order for removed ones.
func compareElements(oldElems, newElems []Element) (added, removed, modified []string) {
	oldByName := make(map[string]Element, len(oldElems))
	for _, elem := range oldElems {
		oldByName[elem.Name] = elem
	}

	newByName := make(map[string]Element, len(newElems))
	for _, elem := range newElems {
		newByName[elem.Name] = elem
	}

	for _, elem := range newElems {
		oldElem, existed := oldByName[elem.Name]

		switch {
		case !existed:
			added = append(added, elem.Name)
		case oldElem.LineSpan() != elem.LineSpan():
			modified = append(modified, elem.Name)
		}
	}

	for _, elem := range oldElems {
		if _, exists := newByName[elem.Name]; !exists {
			removed = append(removed, elem.Name)
		}
	}

	return added, removed, modified
}

func compareImports(oldImports, newImports map[string]struct{}) (added, removed []string) {
	for imp := range newImports {
		if _, exists := oldImports[imp]; !exists {
			added = append(added, imp)
		}
	}

	for imp := range oldImports {
		if _, exists := newImports[imp]; !exists {
			removed = append(removed, imp)
		}
	}

	return added, removed
}

func abs(value int) int {
	if value < 0 {
		return -value
	}

	return value
}

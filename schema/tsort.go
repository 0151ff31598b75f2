package schema

// topologicalSort orders items so that every item comes after the items it depends on.
// dependencies maps an item ID to the IDs it depends on; IDs outside items are ignored.
// It returns false when the dependencies contain a cycle.
func topologicalSort[T any](items []T, dependencies map[string][]string, getID func(T) string) ([]T, bool) {
	const (
		unvisited = iota
		visiting
		visited
	)

	byID := make(map[string]T, len(items))
	for _, item := range items {
		byID[getID(item)] = item
	}

	state := make(map[string]int, len(items))
	sorted := make([]T, 0, len(items))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return false
		case visited:
			return true
		}
		state[id] = visiting
		for _, dep := range dependencies[id] {
			if _, ok := byID[dep]; ok && !visit(dep) {
				return false
			}
		}
		state[id] = visited
		sorted = append(sorted, byID[id])
		return true
	}

	for _, item := range items {
		if !visit(getID(item)) {
			return nil, false
		}
	}
	return sorted, true
}

package bisque

// AncestorArtifacts returns every artifact reachable from initial through
// ParentArtifacts, initial included, each exactly once. Nodes are compared
// by ID, never by structure. The order is a depth-first pre-order and
// carries no meaning.
//
// The graph must be acyclic. Construction order guarantees that for graphs
// built with this package; the walk does not check for cycles.
func AncestorArtifacts(initial []Artifact) []Artifact {
	visited := make(map[NodeID]bool)
	var result []Artifact

	stack := make([]Artifact, 0, len(initial))
	for i := len(initial) - 1; i >= 0; i-- {
		stack = append(stack, initial[i])
	}
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[a.ID()] {
			continue
		}
		visited[a.ID()] = true
		result = append(result, a)

		parents := a.ParentArtifacts()
		for i := len(parents) - 1; i >= 0; i-- {
			if !visited[parents[i].ID()] {
				stack = append(stack, parents[i])
			}
		}
	}
	return result
}

// AncestorJobs returns every job that produces an artifact in
// AncestorArtifacts(initial), each once, ordered so that a job appears
// after all of its parent jobs.
func AncestorJobs(initial []Artifact) []Job {
	seen := make(map[NodeID]bool)
	var order []Job
	var visit func(j Job)
	visit = func(j Job) {
		if seen[j.ID()] {
			return
		}
		seen[j.ID()] = true
		for _, p := range j.ParentJobs() {
			visit(p)
		}
		order = append(order, j)
	}
	for _, a := range AncestorArtifacts(initial) {
		for _, j := range a.ParentJobs() {
			visit(j)
		}
	}
	return order
}

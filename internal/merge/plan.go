// Package merge holds the pure planning step shared by both sinks.
package merge

// Plan returns the incoming identifiers not yet present in existing,
// preserving incoming order and keeping only the first occurrence of each
// identifier. No I/O, deterministic: planning against an already merged
// store yields an empty result, which is what makes re-runs idempotent.
func Plan(existing map[string]struct{}, incoming []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(incoming))
	for _, id := range incoming {
		if id == "" {
			continue
		}
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Snapshot builds the existing-identifier set a plan is computed against.
// Callers must capture it once per profile and run before planning.
func Snapshot(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Package identity implements the identity graph: canonical root
// resolution over merged_into_person_id pointers and the find-or-create
// entrypoint ingestion sources call per raw record.
package identity

import (
	"context"
	"fmt"
)

// PointerLookup fetches the merged_into_person_id pointer for a person.
// A nil result means the person is canonical.
type PointerLookup func(ctx context.Context, tenantID string, personID string) (*string, error)

// ResolveRoot walks merge pointers to the canonical root. The walk is
// iterative with a visited set: pointers are path-compressed to depth one on
// every merge, but a data bug must surface as an error, not a hang.
func ResolveRoot(ctx context.Context, tenantID string, personID string, lookup PointerLookup) (string, error) {
	visited := map[string]bool{}
	current := personID

	for {
		if visited[current] {
			return "", fmt.Errorf("merge pointer cycle detected at person %s", current)
		}
		visited[current] = true

		next, err := lookup(ctx, tenantID, current)
		if err != nil {
			return "", err
		}
		if next == nil {
			return current, nil
		}
		current = *next
	}
}

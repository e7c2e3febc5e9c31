package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(pointers map[string]string) PointerLookup {
	return func(ctx context.Context, tenantID string, personID string) (*string, error) {
		if next, ok := pointers[personID]; ok {
			return &next, nil
		}
		return nil, nil
	}
}

func TestResolveRoot(t *testing.T) {
	ctx := context.Background()

	t.Run("canonical person resolves to itself", func(t *testing.T) {
		root, err := ResolveRoot(ctx, "t1", "a", mapLookup(map[string]string{}))
		require.NoError(t, err)
		assert.Equal(t, "a", root)
	})

	t.Run("single hop", func(t *testing.T) {
		root, err := ResolveRoot(ctx, "t1", "a", mapLookup(map[string]string{"a": "b"}))
		require.NoError(t, err)
		assert.Equal(t, "b", root)
	})

	t.Run("resolution is idempotent", func(t *testing.T) {
		lookup := mapLookup(map[string]string{"a": "b"})
		root, err := ResolveRoot(ctx, "t1", "a", lookup)
		require.NoError(t, err)
		again, err := ResolveRoot(ctx, "t1", root, lookup)
		require.NoError(t, err)
		assert.Equal(t, root, again)
	})

	t.Run("transitive chain resolves to final root", func(t *testing.T) {
		lookup := mapLookup(map[string]string{"a": "b", "b": "c"})
		for _, id := range []string{"a", "b", "c"} {
			root, err := ResolveRoot(ctx, "t1", id, lookup)
			require.NoError(t, err)
			assert.Equal(t, "c", root)
		}
	})

	t.Run("cycle surfaces as error", func(t *testing.T) {
		_, err := ResolveRoot(ctx, "t1", "a", mapLookup(map[string]string{"a": "b", "b": "a"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})
}

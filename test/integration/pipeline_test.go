// Package integration contains end-to-end behavior tests for the resolution
// pipeline: normalization, scoring, classification and merge pointer
// semantics, exercised in memory without external services.
package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/matching"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/normalizers"
)

const tenantID = "11111111-1111-1111-1111-111111111111"

type contactRecord struct {
	Email    string
	Phone    string
	Name     string
	Address  string
	Locality string
}

func fieldsFor(record contactRecord) matching.PersonFields {
	fields := matching.PersonFields{
		Name:    normalizers.NormalizeName(record.Name),
		Address: normalizers.NormalizeAddress(record.Address),
	}
	if email := normalizers.NormalizeEmail(record.Email); email != "" {
		fields.Emails = append(fields.Emails, email)
	}
	if phone := normalizers.NormalizePhone(record.Phone); phone != "" {
		fields.Phones = append(fields.Phones, phone)
	}
	return fields
}

func noShared(_ context.Context, _ models.IdentifierType, _ string) (bool, error) {
	return false, nil
}

func TestPipeline_SameContactFromTwoSources(t *testing.T) {
	scorer := matching.NewScorer(matching.DefaultScorerConfig())
	thresholds := matching.DefaultThresholds()

	crm := contactRecord{
		Email:    "John.Doe@Example.COM ",
		Phone:    "+1 (555) 123-4567",
		Name:     "John Doe Jr.",
		Address:  "123 Main Street",
		Locality: "springfield",
	}
	billing := contactRecord{
		Email:    "john.doe@example.com",
		Phone:    "555.123.4567",
		Name:     "JOHN DOE",
		Address:  "123 Main St",
		Locality: "Springfield",
	}

	fieldsA := fieldsFor(crm)
	fieldsB := fieldsFor(billing)

	// Normalization collapses the formatting differences entirely.
	assert.Equal(t, fieldsA.Emails, fieldsB.Emails)
	assert.Equal(t, fieldsA.Phones, fieldsB.Phones)
	assert.Equal(t, fieldsA.Name, fieldsB.Name)
	assert.Equal(t, fieldsA.Address, fieldsB.Address)

	score, err := scorer.Score(context.Background(), fieldsA, fieldsB, noShared)
	require.NoError(t, err)

	assert.Equal(t, matching.DecisionAutoMerge, matching.Classify(score.LogOdds, thresholds))
	assert.Equal(t, models.FieldOutcomeAgree, score.Vector[matching.FieldEmail])
	assert.Equal(t, models.FieldOutcomeAgree, score.Vector[matching.FieldPhone])
	assert.Greater(t, score.Probability(), 99.0)
}

func TestPipeline_DifferentPeopleSameName(t *testing.T) {
	scorer := matching.NewScorer(matching.DefaultScorerConfig())
	thresholds := matching.DefaultThresholds()

	a := fieldsFor(contactRecord{
		Email: "jsmith@acme.com",
		Phone: "555 111 2222",
		Name:  "John Smith",
	})
	b := fieldsFor(contactRecord{
		Email: "john.smith@globex.com",
		Phone: "555 999 8888",
		Name:  "John Smith",
	})

	score, err := scorer.Score(context.Background(), a, b, noShared)
	require.NoError(t, err)

	// Name agreement alone cannot outweigh disagreeing identifiers.
	assert.Equal(t, matching.DecisionReject, matching.Classify(score.LogOdds, thresholds))
}

func TestPipeline_SharedMailboxStaysInReview(t *testing.T) {
	scorer := matching.NewScorer(matching.DefaultScorerConfig())
	thresholds := matching.DefaultThresholds()

	alwaysShared := func(_ context.Context, idType models.IdentifierType, _ string) (bool, error) {
		return idType == models.IdentifierTypeEmail, nil
	}

	a := fieldsFor(contactRecord{Email: "office@example.com", Name: "Pat Jones"})
	b := fieldsFor(contactRecord{Email: "office@example.com", Name: "Sam Brown"})

	score, err := scorer.Score(context.Background(), a, b, alwaysShared)
	require.NoError(t, err)

	assert.Equal(t, models.FieldOutcomeSharedAgree, score.Vector[matching.FieldEmail])
	assert.NotEqual(t, matching.DecisionAutoMerge, matching.Classify(score.LogOdds, thresholds))
}

func TestPipeline_MergePointerSemantics(t *testing.T) {
	// Pointer graph after merging A into B, then B into C.
	pointers := map[string]string{
		"person-a": "person-b",
		"person-b": "person-c",
	}
	lookup := func(_ context.Context, _ string, id string) (*string, error) {
		if target, ok := pointers[id]; ok {
			return &target, nil
		}
		return nil, nil
	}

	t.Run("TransitiveResolution", func(t *testing.T) {
		root, err := identity.ResolveRoot(context.Background(), tenantID, "person-a", lookup)
		require.NoError(t, err)
		assert.Equal(t, "person-c", root)
	})

	t.Run("CanonicalResolvesToItself", func(t *testing.T) {
		root, err := identity.ResolveRoot(context.Background(), tenantID, "person-c", lookup)
		require.NoError(t, err)
		assert.Equal(t, "person-c", root)
	})

	t.Run("UndoRestoresSource", func(t *testing.T) {
		delete(pointers, "person-b")

		root, err := identity.ResolveRoot(context.Background(), tenantID, "person-b", lookup)
		require.NoError(t, err)
		assert.Equal(t, "person-b", root)

		// A still points at B; it now resolves to the restored B.
		root, err = identity.ResolveRoot(context.Background(), tenantID, "person-a", lookup)
		require.NoError(t, err)
		assert.Equal(t, "person-b", root)
	})
}

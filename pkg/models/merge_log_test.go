package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLogEntry_DecodePreMergeState(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		state := PreMergeState{
			IdentifierIDs:     []string{"id-1", "id-2"},
			AliasIDs:          []string{"alias-1"},
			RepointedChildIDs: []string{"child-1"},
		}
		data, err := json.Marshal(state)
		require.NoError(t, err)

		entry := &MergeLogEntry{PreMergeState: data}
		decoded, err := entry.DecodePreMergeState()
		require.NoError(t, err)

		assert.Equal(t, state.IdentifierIDs, decoded.IdentifierIDs)
		assert.Equal(t, state.AliasIDs, decoded.AliasIDs)
		assert.Empty(t, decoded.RelationshipIDs)
		assert.Equal(t, state.RepointedChildIDs, decoded.RepointedChildIDs)
	})

	t.Run("EmptySnapshot", func(t *testing.T) {
		entry := &MergeLogEntry{}
		decoded, err := entry.DecodePreMergeState()
		require.NoError(t, err)
		assert.Empty(t, decoded.IdentifierIDs)
	})

	t.Run("CorruptSnapshot", func(t *testing.T) {
		entry := &MergeLogEntry{PreMergeState: json.RawMessage(`{not json`)}
		_, err := entry.DecodePreMergeState()
		assert.Error(t, err)
	})
}

func TestMatchCandidate_AgreementFields(t *testing.T) {
	t.Run("DecodesVector", func(t *testing.T) {
		candidate := &MatchCandidate{
			AgreementVector: json.RawMessage(`{"email":"agree","phone":"missing","name":"shared_agree"}`),
		}
		fields, err := candidate.AgreementFields()
		require.NoError(t, err)

		assert.Equal(t, FieldOutcomeAgree, fields["email"])
		assert.Equal(t, FieldOutcomeMissing, fields["phone"])
		assert.Equal(t, FieldOutcomeSharedAgree, fields["name"])
	})

	t.Run("EmptyVector", func(t *testing.T) {
		candidate := &MatchCandidate{}
		fields, err := candidate.AgreementFields()
		require.NoError(t, err)
		assert.Empty(t, fields)
	})
}

func TestPerson_IsCanonical(t *testing.T) {
	target := "target-id"

	assert.True(t, (&Person{}).IsCanonical())
	assert.False(t, (&Person{MergedIntoPersonID: &target}).IsCanonical())
}

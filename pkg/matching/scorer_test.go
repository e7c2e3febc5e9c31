package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

func neverShared(ctx context.Context, idType models.IdentifierType, valueNorm string) (bool, error) {
	return false, nil
}

func alwaysShared(ctx context.Context, idType models.IdentifierType, valueNorm string) (bool, error) {
	return true, nil
}

func TestScorer_Symmetry(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	ctx := context.Background()

	a := PersonFields{Emails: []string{"jane@x.com"}, Phones: []string{"7075551212"}, Name: "jane doe", Address: "123 main st"}
	b := PersonFields{Emails: []string{"jane@x.com", "jd@y.com"}, Name: "jane doe"}

	ab, err := scorer.Score(ctx, a, b, neverShared)
	require.NoError(t, err)
	ba, err := scorer.Score(ctx, b, a, neverShared)
	require.NoError(t, err)

	assert.Equal(t, ab.LogOdds, ba.LogOdds)
	assert.Equal(t, ab.Vector, ba.Vector)
}

func TestScorer_MissingNeutrality(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	ctx := context.Background()

	base := PersonFields{Emails: []string{"jane@x.com"}, Name: "jane doe"}
	disagreeing := PersonFields{Emails: []string{"jane@x.com"}, Phones: []string{"7075550000"}, Name: "jane doe"}
	other := PersonFields{Emails: []string{"jane@x.com"}, Phones: []string{"7075551212"}, Name: "jane doe"}

	withDisagree, err := scorer.Score(ctx, disagreeing, other, neverShared)
	require.NoError(t, err)
	withMissing, err := scorer.Score(ctx, base, other, neverShared)
	require.NoError(t, err)

	assert.Equal(t, models.FieldOutcomeDisagree, withDisagree.Vector[FieldPhone])
	assert.Equal(t, models.FieldOutcomeMissing, withMissing.Vector[FieldPhone])
	assert.Greater(t, withMissing.LogOdds, withDisagree.LogOdds)
}

func TestScorer_EmailAgreePhoneMissing(t *testing.T) {
	// Person X has email + phone; person Y has the same email, no phone.
	// Email agrees, phone is neutral, and the score is strictly below the
	// both-fields-agree case.
	scorer := NewScorer(DefaultScorerConfig())
	ctx := context.Background()

	x := PersonFields{Emails: []string{"jane@x.com"}, Phones: []string{"7075551212"}}
	y := PersonFields{Emails: []string{"jane@x.com"}}
	yWithPhone := PersonFields{Emails: []string{"jane@x.com"}, Phones: []string{"7075551212"}}

	emailOnly, err := scorer.Score(ctx, x, y, neverShared)
	require.NoError(t, err)
	bothAgree, err := scorer.Score(ctx, x, yWithPhone, neverShared)
	require.NoError(t, err)

	assert.Equal(t, models.FieldOutcomeAgree, emailOnly.Vector[FieldEmail])
	assert.Equal(t, models.FieldOutcomeMissing, emailOnly.Vector[FieldPhone])
	assert.Greater(t, bothAgree.LogOdds, emailOnly.LogOdds)
}

func TestScorer_CommonNameDifferentContacts(t *testing.T) {
	// Two John Smiths with different emails and phones must land below the
	// lower threshold and classify as reject.
	config := DefaultConfig()
	scorer := NewScorer(config.Scorer)
	ctx := context.Background()

	a := PersonFields{Emails: []string{"jsmith@x.com"}, Phones: []string{"7075551111"}, Name: "john smith"}
	b := PersonFields{Emails: []string{"john.smith@y.com"}, Phones: []string{"7075552222"}, Name: "john smith"}

	score, err := scorer.Score(ctx, a, b, neverShared)
	require.NoError(t, err)

	assert.Equal(t, models.FieldOutcomeAgree, score.Vector[FieldName])
	assert.Equal(t, models.FieldOutcomeDisagree, score.Vector[FieldEmail])
	assert.Equal(t, models.FieldOutcomeDisagree, score.Vector[FieldPhone])
	assert.Less(t, score.LogOdds, config.Thresholds.Lower)
	assert.Equal(t, DecisionReject, Classify(score.LogOdds, config.Thresholds))
}

func TestScorer_SharedPhoneDoesNotAutoMerge(t *testing.T) {
	// A soft-blacklisted shared phone contributes only the discounted
	// weight, so it can never carry a pair over the auto-merge threshold.
	config := DefaultConfig()
	scorer := NewScorer(config.Scorer)
	ctx := context.Background()

	a := PersonFields{Emails: []string{"a@x.com"}, Phones: []string{"7075559999"}, Name: "alice smith"}
	b := PersonFields{Emails: []string{"b@y.com"}, Phones: []string{"7075559999"}, Name: "bob jones"}

	score, err := scorer.Score(ctx, a, b, alwaysShared)
	require.NoError(t, err)

	assert.Equal(t, models.FieldOutcomeSharedAgree, score.Vector[FieldPhone])
	assert.Less(t, score.LogOdds, config.Thresholds.Upper)
	assert.NotEqual(t, DecisionAutoMerge, Classify(score.LogOdds, config.Thresholds))
}

func TestScorer_NameAloneNeverAutoMerges(t *testing.T) {
	config := DefaultConfig()
	scorer := NewScorer(config.Scorer)
	ctx := context.Background()

	a := PersonFields{Name: "john smith"}
	b := PersonFields{Name: "john smith"}

	score, err := scorer.Score(ctx, a, b, neverShared)
	require.NoError(t, err)

	assert.Less(t, score.LogOdds, config.Thresholds.Upper)
	assert.NotEqual(t, DecisionAutoMerge, Classify(score.LogOdds, config.Thresholds))
}

func TestMatchScore_Probability(t *testing.T) {
	zero := MatchScore{LogOdds: 0}
	assert.InDelta(t, 50.0, zero.Probability(), 0.001)

	high := MatchScore{LogOdds: 10}
	assert.Greater(t, high.Probability(), 99.0)

	low := MatchScore{LogOdds: -10}
	assert.Less(t, low.Probability(), 1.0)
}

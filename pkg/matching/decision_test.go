package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	thresholds := Thresholds{Upper: 7.0, Lower: 2.0}

	tests := []struct {
		name     string
		logOdds  float64
		expected Decision
	}{
		{"well above upper", 13.0, DecisionAutoMerge},
		{"exactly upper", 7.0, DecisionAutoMerge},
		{"between thresholds", 4.5, DecisionPendingReview},
		{"exactly lower", 2.0, DecisionPendingReview},
		{"just below lower", 1.99, DecisionReject},
		{"negative", -2.5, DecisionReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.logOdds, thresholds))
		})
	}
}

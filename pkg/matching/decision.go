package matching

// Decision is the classification of a scored pair
type Decision string

const (
	DecisionAutoMerge     Decision = "auto_merge"
	DecisionPendingReview Decision = "pending_review"
	DecisionReject        Decision = "reject"
)

// Thresholds are the two log-odds cut points, Upper > Lower.
type Thresholds struct {
	Upper float64
	Lower float64
}

// DefaultThresholds returns the production cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Upper: 7.0, Lower: 2.0}
}

// Classify maps a log-odds score to a decision. Pure function, no I/O.
func Classify(logOdds float64, t Thresholds) Decision {
	switch {
	case logOdds >= t.Upper:
		return DecisionAutoMerge
	case logOdds >= t.Lower:
		return DecisionPendingReview
	default:
		return DecisionReject
	}
}

package constants

// Materialization thresholds on the 0-100 OCR confidence scale. These gate
// real side effects and must not be confused with the display bands below.
const (
	// AutoCreateThreshold is inclusive: exactly 90.0 auto-creates.
	AutoCreateThreshold = 90.0
	// ManualReviewThreshold is the floor of the review band. Anything below
	// it still routes to manual review; there is no reject-on-low-confidence
	// branch.
	ManualReviewThreshold = 70.0
)

// Display-only confidence bands. Presentational, never used to gate
// materialization.
const (
	ConfidenceHighFloor   = 90.0
	ConfidenceMediumFloor = 80.0
)

// ConfidenceLevel returns the presentational band for a confidence score.
// Out-of-range scores are not clamped; they fall into the nearest band.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= ConfidenceHighFloor:
		return "high"
	case score >= ConfidenceMediumFloor:
		return "medium"
	default:
		return "low"
	}
}

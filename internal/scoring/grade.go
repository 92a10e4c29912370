package scoring

// Grade is an ordered risk grade, 1 (lowest risk) through 6 (highest risk).
type Grade int

const (
	GradeUltraLowRisk Grade = iota + 1
	GradeVeryLowRisk
	GradeLowRisk
	GradeModerateRisk
	GradeHighRisk
	GradeVeryHighRisk
)

// Classify maps a total score to its grade. Bands are matched highest score
// first, lower bounds inclusive, so every score in [0,1000] lands in exactly
// one band.
func Classify(total float64) Grade {
	switch {
	case total >= 700:
		return GradeUltraLowRisk
	case total >= 653:
		return GradeVeryLowRisk
	case total >= 600:
		return GradeLowRisk
	case total >= 570:
		return GradeModerateRisk
	case total >= 528:
		return GradeHighRisk
	default:
		return GradeVeryHighRisk
	}
}

// Label returns the human-readable risk label for the grade.
func (g Grade) Label() string {
	switch g {
	case GradeUltraLowRisk:
		return "Ultra Low Risk"
	case GradeVeryLowRisk:
		return "Very Low Risk"
	case GradeLowRisk:
		return "Low Risk"
	case GradeModerateRisk:
		return "Moderate Risk"
	case GradeHighRisk:
		return "High Risk"
	case GradeVeryHighRisk:
		return "Very High Risk"
	default:
		return "Unknown"
	}
}

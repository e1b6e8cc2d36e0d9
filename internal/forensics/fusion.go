package forensics

import (
	"fmt"
	"math"
)

// Fusion weights. Risk is
//
//	clamp(0, 100, round(0.25*splice + 0.35*timeline + 14*falseOrMixed + 5*unclear))
//
// with round-half-to-even, and confidence is clamp(50, 95, round(90 - 0.6*risk)).
const (
	spliceWeight       = 0.25
	timelineWeight     = 0.35
	falseOrMixedWeight = 14
	unclearWeight      = 5

	timelineAlarm   = 60
	realRiskCeiling = 70
	fakeRiskFloor   = 75
	misleadingFloor = 50

	confidenceBase  = 90
	confidenceSlope = 0.6
	minConfidence   = 50
	maxConfidence   = 95
)

// Fuse combines claim verdicts with the splice and timeline signals into one
// verdict. It is pure: equal inputs give equal outputs. Missing assessments
// count as zero risk.
func Fuse(verdicts []ClaimVerdict, splice *SpliceAssessment, timeline *TimelineAssessment) FinalVerdict {
	var falseOrMixed, unclear, confSum int
	for _, v := range verdicts {
		switch {
		case v.Verdict.FalseOrMixed():
			falseOrMixed++
		case v.Verdict == VerdictUnclear:
			unclear++
		}
		confSum += v.Confidence
	}

	var spliceScore, timeScore int
	if splice != nil {
		spliceScore = clampInt(splice.SpliceRiskScore, 0, 100)
	}
	final := FinalVerdict{}
	if timeline != nil {
		timeScore = clampInt(timeline.TimelineMismatchRiskScore, 0, 100)
		final.LikelyEventYear = timeline.LikelyEventYear
		final.PostedDate = timeline.PostedDate
	}

	risk := RiskScore(spliceScore, timeScore, falseOrMixed, unclear)

	final.Verdict = selectLabel(risk, timeScore, falseOrMixed)
	final.ConfidencePercent = Confidence(risk)
	final.MisinformationRiskScore = risk
	final.AvgFactcheckConfidence = averageConfidence(confSum, len(verdicts))
	final.FalseOrMixedClaims = falseOrMixed
	final.UnclearClaims = unclear
	final.SpliceRiskScore = spliceScore
	final.TimelineMismatchRiskScore = timeScore
	final.OneLineLabel = fmt.Sprintf("%s - %d%% Confidence", final.Verdict, final.ConfidencePercent)
	return final
}

func RiskScore(spliceScore, timeScore, falseOrMixed, unclear int) int {
	risk := 0.0
	risk += float64(spliceScore) * spliceWeight
	risk += float64(timeScore) * timelineWeight
	risk += float64(falseOrMixed * falseOrMixedWeight)
	risk += float64(unclear * unclearWeight)
	return int(math.Max(0, math.Min(100, math.RoundToEven(risk))))
}

func Confidence(risk int) int {
	c := math.RoundToEven(confidenceBase - float64(risk)*confidenceSlope)
	return int(math.Max(minConfidence, math.Min(maxConfidence, c)))
}

func selectLabel(risk, timeScore, falseOrMixed int) Label {
	if falseOrMixed == 0 && timeScore < timelineAlarm {
		if risk < realRiskCeiling {
			return LabelReal
		}
		return LabelMisleading
	}

	switch {
	case falseOrMixed >= 2 || risk >= fakeRiskFloor:
		return LabelFake
	case falseOrMixed >= 1 || risk >= misleadingFloor || timeScore >= timelineAlarm:
		return LabelMisleading
	default:
		return LabelReal
	}
}

func averageConfidence(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.RoundToEven(float64(sum)/float64(n)*10) / 10
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

package forensics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func verdicts(vs ...Verdict) []ClaimVerdict {
	out := make([]ClaimVerdict, 0, len(vs))
	for _, v := range vs {
		out = append(out, ClaimVerdict{Claim: "c", Verdict: v, Confidence: 80})
	}
	return out
}

func TestFuseCleanInputsAreReal(t *testing.T) {
	final := Fuse(nil, &SpliceAssessment{}, &TimelineAssessment{})

	require.Equal(t, 0, final.MisinformationRiskScore)
	require.Equal(t, LabelReal, final.Verdict)
	require.Equal(t, 90, final.ConfidencePercent)
	require.Equal(t, 0.0, final.AvgFactcheckConfidence)
	require.Equal(t, "REAL - 90% Confidence", final.OneLineLabel)
}

func TestFuseTwoFalseClaimsIsFake(t *testing.T) {
	final := Fuse(verdicts(VerdictFalse, VerdictMixed), &SpliceAssessment{}, &TimelineAssessment{})

	require.Equal(t, 28, final.MisinformationRiskScore)
	require.Equal(t, LabelFake, final.Verdict)
	require.Equal(t, 73, final.ConfidencePercent)
	require.Equal(t, 2, final.FalseOrMixedClaims)
}

func TestFuseTimelineAlarmForcesMisleading(t *testing.T) {
	final := Fuse(nil, &SpliceAssessment{}, &TimelineAssessment{TimelineMismatchRiskScore: 65})

	require.Equal(t, 23, final.MisinformationRiskScore)
	require.Equal(t, LabelMisleading, final.Verdict)
	require.Equal(t, 76, final.ConfidencePercent)
}

func TestFuseVerdictBranches(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []ClaimVerdict
		splice   int
		timeline int
		risk     int
		want     Label
	}{
		{"single unclear claim", verdicts(VerdictUnclear), 0, 0, 5, LabelReal},
		{"true claims only", verdicts(VerdictTrue, VerdictTrue), 20, 20, 12, LabelReal},
		{"high risk without false claims", verdicts(VerdictUnclear, VerdictUnclear, VerdictUnclear, VerdictUnclear, VerdictUnclear), 100, 59, 71, LabelMisleading},
		{"one false claim", verdicts(VerdictFalse), 0, 0, 14, LabelMisleading},
		{"one false claim with high risk", verdicts(VerdictFalse, VerdictUnclear), 100, 100, 79, LabelFake},
		{"one mixed claim near fake floor", verdicts(VerdictMixed), 100, 100, 74, LabelMisleading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final := Fuse(tt.verdicts, &SpliceAssessment{SpliceRiskScore: tt.splice}, &TimelineAssessment{TimelineMismatchRiskScore: tt.timeline})
			require.Equal(t, tt.risk, final.MisinformationRiskScore)
			require.Equal(t, tt.want, final.Verdict)
		})
	}
}

func TestFuseStaysInBounds(t *testing.T) {
	scores := []int{-20, 0, 29, 30, 59, 60, 75, 100, 180}
	kinds := []Verdict{VerdictTrue, VerdictFalse, VerdictMixed, VerdictUnclear}

	for _, s := range scores {
		for _, tl := range scores {
			for n := 0; n <= 8; n++ {
				var vs []ClaimVerdict
				for i := 0; i < n; i++ {
					vs = append(vs, ClaimVerdict{Verdict: kinds[(i+s+tl+200)%len(kinds)], Confidence: i * 12})
				}
				splice := &SpliceAssessment{SpliceRiskScore: s}
				timeline := &TimelineAssessment{TimelineMismatchRiskScore: tl}

				final := Fuse(vs, splice, timeline)
				require.GreaterOrEqual(t, final.MisinformationRiskScore, 0)
				require.LessOrEqual(t, final.MisinformationRiskScore, 100)
				require.GreaterOrEqual(t, final.ConfidencePercent, 50)
				require.LessOrEqual(t, final.ConfidencePercent, 95)
				require.Contains(t, []Label{LabelReal, LabelMisleading, LabelFake}, final.Verdict)
				require.Equal(t, final, Fuse(vs, splice, timeline))
			}
		}
	}
}

func TestRiskScoreRoundsHalfToEven(t *testing.T) {
	require.Equal(t, 0, RiskScore(2, 0, 0, 0))
	require.Equal(t, 2, RiskScore(6, 0, 0, 0))
	require.Equal(t, 2, RiskScore(10, 0, 0, 0))
	require.Equal(t, 4, RiskScore(14, 0, 0, 0))
	require.Equal(t, 100, RiskScore(100, 100, 10, 10))
}

func TestConfidenceIsClamped(t *testing.T) {
	require.Equal(t, 90, Confidence(0))
	require.Equal(t, 50, Confidence(100))
	require.Equal(t, 95, Confidence(-10))
	require.Equal(t, 60, Confidence(50))
}

func TestFuseAveragesConfidence(t *testing.T) {
	vs := []ClaimVerdict{
		{Verdict: VerdictTrue, Confidence: 80},
		{Verdict: VerdictTrue, Confidence: 75},
		{Verdict: VerdictUnclear, Confidence: 0},
	}
	final := Fuse(vs, nil, nil)

	require.Equal(t, 51.7, final.AvgFactcheckConfidence)
	require.Equal(t, 1, final.UnclearClaims)
	require.Equal(t, 5, final.MisinformationRiskScore)
}

func TestFuseEchoesTimeline(t *testing.T) {
	year := 2016
	final := Fuse(nil, &SpliceAssessment{SpliceRiskScore: 20}, &TimelineAssessment{
		PostedDate:                "2024-05-01",
		LikelyEventYear:           &year,
		TimelineMismatchRiskScore: 40,
	})

	require.Equal(t, "2024-05-01", final.PostedDate)
	require.Equal(t, &year, final.LikelyEventYear)
	require.Equal(t, 20, final.SpliceRiskScore)
	require.Equal(t, 40, final.TimelineMismatchRiskScore)
	require.Equal(t, 19, final.MisinformationRiskScore)
}

package forensics

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildReportShapesUserReport(t *testing.T) {
	vs := []ClaimVerdict{
		{Claim: "A", Verdict: VerdictTrue, Confidence: 90},
		{Claim: "B", Verdict: VerdictFalse, Confidence: 70, CorrectInformation: "B is wrong", Explanation: "sources disagree",
			Citations: []Citation{{URL: "https://b.example"}}},
		{Claim: "C", Verdict: VerdictMixed, Confidence: 55},
	}
	structured := &StructuredContent{VideoSummary: "video only", Claims: []Claim{{Text: "A"}, {Text: "B"}, {Text: "C"}}}
	splice := &SpliceAssessment{SpliceRiskScore: 30}
	timing := &TimelineAssessment{TimelineMismatchRiskScore: 45}
	final := Fuse(vs, splice, timing)

	r := BuildReport("run-1", final, structured, vs, splice, timing)

	require.Equal(t, "run-1", r.RunID)
	require.Equal(t, structured.Claims, r.Claims.Claims)
	require.Equal(t, vs, r.Factcheck.Results)
	require.Equal(t, final, r.Details.Final)
	require.Equal(t, 30, r.Signals.SpliceRiskScore)
	require.Equal(t, 45, r.Signals.TimelineMismatchRiskScore)

	u := r.UserReport
	require.Equal(t, final.Verdict, u.Verdict)
	require.Equal(t, final.MisinformationRiskScore, u.RiskScore)
	require.Equal(t, "video only", u.Summary)
	require.Equal(t, []string{
		"Normal editing/jump cuts detected (common in tutorials).",
		"Some timeline uncertainty.",
		"One or more claims appear false or misleading based on web sources.",
	}, u.TopReasons)

	require.Len(t, u.Corrections, 2)
	require.Equal(t, "B", u.Corrections[0].IncorrectClaim)
	require.Equal(t, "B is wrong", u.Corrections[0].CorrectInformation)
	require.Len(t, u.Corrections[0].Citations, 1)
	require.Equal(t, "C", u.Corrections[1].IncorrectClaim)
	require.NotNil(t, u.Corrections[1].Citations)
}

func TestTopReasons(t *testing.T) {
	tests := []struct {
		name  string
		final FinalVerdict
		want  []string
	}{
		{
			name:  "clean",
			final: FinalVerdict{SpliceRiskScore: 29, TimelineMismatchRiskScore: 29},
			want: []string{
				"Little to no abrupt editing detected.",
				"Timeline looks consistent with posted date.",
				"Key claims look consistent with web sources.",
			},
		},
		{
			name:  "unconfirmed claims",
			final: FinalVerdict{TimelineMismatchRiskScore: 60, UnclearClaims: 2},
			want: []string{
				"Little to no abrupt editing detected.",
				"Posted date and event timing look inconsistent.",
				"Some claims could not be confirmed from web sources.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, topReasons(tt.final))
		})
	}
}

func TestBuildReportLimitsCorrectionsAndSummary(t *testing.T) {
	var vs []ClaimVerdict
	for i := 0; i < 8; i++ {
		vs = append(vs, ClaimVerdict{Claim: "x", Verdict: VerdictFalse})
	}
	structured := &StructuredContent{
		VideoSummary:    "unused",
		CombinedSummary: strings.Repeat("é", 1200),
	}

	r := BuildReport("run-2", Fuse(vs, nil, nil), structured, vs, nil, nil)
	require.Len(t, r.UserReport.Corrections, maxCorrections)
	require.Equal(t, maxSummaryChars, len([]rune(r.UserReport.Summary)))
	require.Equal(t, LabelFake, r.Final.Verdict)
}

func TestReportJSONKeys(t *testing.T) {
	r := BuildReport("run-3", Fuse(nil, nil, nil), nil, nil, nil, nil)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"run_id", "final", "structured", "claims", "factcheck", "splice", "timing", "signals", "details", "user_report"} {
		require.Contains(t, doc, key)
	}
	require.Equal(t, map[string]interface{}{"claims": []interface{}{}}, doc["claims"])
	require.Equal(t, map[string]interface{}{"results": []interface{}{}}, doc["factcheck"])

	final := doc["final"].(map[string]interface{})
	require.Equal(t, "REAL - 90% Confidence", final["one_line_label"])
	require.Nil(t, final["likely_event_year"])
}

package forensics

import (
	"github.com/vidforensics/backend/pkg/textutil"
)

const (
	maxReasons      = 5
	maxCorrections  = 5
	maxSummaryChars = 900
)

type ClaimList struct {
	Claims []Claim `json:"claims"`
}

type FactCheckResults struct {
	Results []ClaimVerdict `json:"results"`
}

type Signals struct {
	SpliceRiskScore           int `json:"splice_risk_score"`
	TimelineMismatchRiskScore int `json:"timeline_mismatch_risk_score"`
}

type Details struct {
	Structured *StructuredContent  `json:"structured"`
	Splice     *SpliceAssessment   `json:"splice"`
	Timing     *TimelineAssessment `json:"timing"`
	Factcheck  FactCheckResults    `json:"factcheck"`
	Final      FinalVerdict        `json:"final"`
}

// Correction is a false or mixed verdict rephrased for the reader.
type Correction struct {
	IncorrectClaim     string     `json:"incorrect_claim"`
	CorrectInformation string     `json:"correct_information"`
	Confidence         int        `json:"confidence"`
	Explanation        string     `json:"explanation"`
	Citations          []Citation `json:"citations"`
}

type UserSignals struct {
	SpliceRiskScore           int  `json:"splice_risk_score"`
	TimelineMismatchRiskScore int  `json:"timeline_mismatch_risk_score"`
	LikelyEventYear           *int `json:"likely_event_year"`
}

type UserReport struct {
	Verdict           Label        `json:"verdict"`
	ConfidencePercent int          `json:"confidence_percent"`
	RiskScore         int          `json:"risk_score"`
	TopReasons        []string     `json:"top_reasons"`
	Summary           string       `json:"summary"`
	Corrections       []Correction `json:"corrections"`
	Signals           UserSignals  `json:"signals"`
}

// Report is the only externally visible result of a fact-check run.
type Report struct {
	RunID      string              `json:"run_id"`
	Final      FinalVerdict        `json:"final"`
	Structured *StructuredContent  `json:"structured"`
	Claims     ClaimList           `json:"claims"`
	Factcheck  FactCheckResults    `json:"factcheck"`
	Splice     *SpliceAssessment   `json:"splice"`
	Timing     *TimelineAssessment `json:"timing"`
	Signals    Signals             `json:"signals"`
	Details    Details             `json:"details"`
	UserReport UserReport          `json:"user_report"`
}

// BuildReport shapes the machine and reader views of one run. It never
// recomputes the verdict.
func BuildReport(runID string, final FinalVerdict, structured *StructuredContent, verdicts []ClaimVerdict, splice *SpliceAssessment, timing *TimelineAssessment) *Report {
	if structured == nil {
		structured = &StructuredContent{}
	}
	claims := structured.Claims
	if claims == nil {
		claims = []Claim{}
	}
	if verdicts == nil {
		verdicts = []ClaimVerdict{}
	}
	results := FactCheckResults{Results: verdicts}

	return &Report{
		RunID:      runID,
		Final:      final,
		Structured: structured,
		Claims:     ClaimList{Claims: claims},
		Factcheck:  results,
		Splice:     splice,
		Timing:     timing,
		Signals: Signals{
			SpliceRiskScore:           final.SpliceRiskScore,
			TimelineMismatchRiskScore: final.TimelineMismatchRiskScore,
		},
		Details: Details{
			Structured: structured,
			Splice:     splice,
			Timing:     timing,
			Factcheck:  results,
			Final:      final,
		},
		UserReport: buildUserReport(final, structured, verdicts),
	}
}

func buildUserReport(final FinalVerdict, structured *StructuredContent, verdicts []ClaimVerdict) UserReport {
	reasons := topReasons(final)
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}

	corrections := []Correction{}
	for _, v := range verdicts {
		if !v.Verdict.FalseOrMixed() {
			continue
		}
		if len(corrections) == maxCorrections {
			break
		}
		citations := v.Citations
		if citations == nil {
			citations = []Citation{}
		}
		corrections = append(corrections, Correction{
			IncorrectClaim:     v.Claim,
			CorrectInformation: v.CorrectInformation,
			Confidence:         v.Confidence,
			Explanation:        v.Explanation,
			Citations:          citations,
		})
	}

	summary := textutil.FirstNonEmpty(structured.CombinedSummary, structured.VideoSummary)

	return UserReport{
		Verdict:           final.Verdict,
		ConfidencePercent: final.ConfidencePercent,
		RiskScore:         final.MisinformationRiskScore,
		TopReasons:        reasons,
		Summary:           textutil.Truncate(summary, maxSummaryChars),
		Corrections:       corrections,
		Signals: UserSignals{
			SpliceRiskScore:           final.SpliceRiskScore,
			TimelineMismatchRiskScore: final.TimelineMismatchRiskScore,
			LikelyEventYear:           final.LikelyEventYear,
		},
	}
}

func topReasons(final FinalVerdict) []string {
	var reasons []string

	if final.SpliceRiskScore >= 30 {
		reasons = append(reasons, "Normal editing/jump cuts detected (common in tutorials).")
	} else {
		reasons = append(reasons, "Little to no abrupt editing detected.")
	}

	switch t := final.TimelineMismatchRiskScore; {
	case t < 30:
		reasons = append(reasons, "Timeline looks consistent with posted date.")
	case t < 60:
		reasons = append(reasons, "Some timeline uncertainty.")
	default:
		reasons = append(reasons, "Posted date and event timing look inconsistent.")
	}

	switch {
	case final.FalseOrMixedClaims == 0 && final.UnclearClaims == 0:
		reasons = append(reasons, "Key claims look consistent with web sources.")
	case final.FalseOrMixedClaims == 0:
		reasons = append(reasons, "Some claims could not be confirmed from web sources.")
	default:
		reasons = append(reasons, "One or more claims appear false or misleading based on web sources.")
	}
	return reasons
}

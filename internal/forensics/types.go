package forensics

import (
	"strings"
)

// AnalysisRequest is one fact-check run's input. It is never mutated.
type AnalysisRequest struct {
	VideoPath  string
	Filename   string
	Caption    string
	PostedDate string
}

// VideoHandle references an indexed, queryable video. It lives for one run.
type VideoHandle struct {
	IndexID string `json:"index_id"`
	AssetID string `json:"asset_id"`
	VideoID string `json:"video_id"`
}

type ClaimSource string

const (
	SourceVideo   ClaimSource = "video"
	SourceCaption ClaimSource = "caption"
	SourceBoth    ClaimSource = "both"
)

func normalizeSource(raw string, hasCaption bool) ClaimSource {
	if !hasCaption {
		return SourceVideo
	}
	switch ClaimSource(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceCaption:
		return SourceCaption
	case SourceBoth:
		return SourceBoth
	default:
		return SourceVideo
	}
}

type Evidence struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

type Claim struct {
	Text     string      `json:"claim"`
	Source   ClaimSource `json:"claim_source"`
	Type     string      `json:"claim_type"`
	Evidence []Evidence  `json:"evidence"`
}

type StructuredContent struct {
	VideoSummary    string  `json:"video_summary"`
	CaptionSummary  string  `json:"caption_summary"`
	CombinedSummary string  `json:"combined_summary"`
	Claims          []Claim `json:"claims"`
}

type Verdict string

const (
	VerdictTrue    Verdict = "true"
	VerdictFalse   Verdict = "false"
	VerdictMixed   Verdict = "mixed"
	VerdictUnclear Verdict = "unclear"
)

func normalizeVerdict(raw string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(raw))) {
	case VerdictTrue:
		return VerdictTrue
	case VerdictFalse:
		return VerdictFalse
	case VerdictMixed:
		return VerdictMixed
	default:
		return VerdictUnclear
	}
}

func (v Verdict) FalseOrMixed() bool {
	return v == VerdictFalse || v == VerdictMixed
}

type Citation struct {
	URL            string `json:"url"`
	SupportingText string `json:"supporting_text"`
}

// ClaimVerdict is produced for every non-empty claim, including those whose
// evidence or reasoning call failed.
type ClaimVerdict struct {
	Claim              string      `json:"claim"`
	ClaimSource        ClaimSource `json:"claim_source"`
	Verdict            Verdict     `json:"verdict"`
	Confidence         int         `json:"confidence"`
	CorrectInformation string      `json:"correct_information"`
	Explanation        string      `json:"explanation"`
	Citations          []Citation  `json:"citations"`
}

type SpliceAssessment struct {
	HasSuddenShifts bool   `json:"has_sudden_shifts"`
	SpliceRiskScore int    `json:"splice_risk_score"`
	Summary         string `json:"summary"`
}

type TimeRelation string

const (
	RelationSameYear  TimeRelation = "same_year"
	RelationPastYears TimeRelation = "past_years"
	RelationFuture    TimeRelation = "future"
	RelationUnclear   TimeRelation = "unclear"
)

func normalizeRelation(raw string) TimeRelation {
	switch TimeRelation(strings.ToLower(strings.TrimSpace(raw))) {
	case RelationSameYear:
		return RelationSameYear
	case RelationPastYears:
		return RelationPastYears
	case RelationFuture:
		return RelationFuture
	default:
		return RelationUnclear
	}
}

type TimelineAssessment struct {
	PostedDate                string       `json:"posted_date"`
	LikelyEventYear           *int         `json:"likely_event_year"`
	TimeRelation              TimeRelation `json:"time_relation"`
	TimelineMismatchRiskScore int          `json:"timeline_mismatch_risk_score"`
	Why                       string       `json:"why"`
	WhatIsCorrect             string       `json:"what_is_correct"`
}

type Label string

const (
	LabelReal       Label = "REAL"
	LabelMisleading Label = "MISLEADING"
	LabelFake       Label = "FAKE"
)

// FinalVerdict is computed once by Fuse and never revised.
type FinalVerdict struct {
	Verdict                   Label   `json:"verdict"`
	ConfidencePercent         int     `json:"confidence_percent"`
	MisinformationRiskScore   int     `json:"misinformation_risk_score"`
	AvgFactcheckConfidence    float64 `json:"avg_factcheck_confidence"`
	FalseOrMixedClaims        int     `json:"false_or_mixed_claims"`
	UnclearClaims             int     `json:"unclear_claims"`
	SpliceRiskScore           int     `json:"splice_risk_score"`
	TimelineMismatchRiskScore int     `json:"timeline_mismatch_risk_score"`
	LikelyEventYear           *int    `json:"likely_event_year"`
	PostedDate                string  `json:"posted_date"`
	OneLineLabel              string  `json:"one_line_label"`
}

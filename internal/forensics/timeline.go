package forensics

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/jsonx"
	"github.com/vidforensics/backend/pkg/logger"
)

const timelinePrompt = `
Return ONLY JSON.

{
  "posted_date": %s,
  "likely_event_year": null,
  "time_relation": "same_year/past_years/future/unclear",
  "timeline_mismatch_risk_score": 0-100,
  "why": "",
  "what_is_correct": ""
}

Goal:
- If caption/video implies event year far from posted_date, flag it.
- If no explicit year/date clues, use unclear.

STRUCTURED:
%s
`

const noCueExplanation = "No explicit year or date cues in the video or caption."

var (
	// A year may sit inside a token: "mid-2020", "2023-24", "FY2024".
	yearRe = regexp.MustCompile(`(?:^|\D)(1[89]\d{2}|20\d{2})(?:\D|$)`)
	dateRe = regexp.MustCompile(`\b\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}\b`)

	// Title-cased only: "may" and "march" are also ordinary words.
	monthTokens = map[string]struct{}{
		"January": {}, "February": {}, "March": {}, "April": {}, "May": {}, "June": {},
		"July": {}, "August": {}, "September": {}, "October": {}, "November": {}, "December": {},
		"Jan": {}, "Feb": {}, "Mar": {}, "Apr": {}, "Jun": {}, "Jul": {}, "Aug": {}, "Sep": {},
		"Sept": {}, "Oct": {}, "Nov": {}, "Dec": {},
	}
)

// TimelineChecker compares temporal cues in the structured content with the
// posted date. Without an explicit cue the relation is unclear; a year is
// never guessed.
type TimelineChecker struct {
	reasoner   Reasoner
	requireCue bool
}

func NewTimelineChecker(r Reasoner, requireCue bool) *TimelineChecker {
	return &TimelineChecker{reasoner: r, requireCue: requireCue}
}

type timelineWire struct {
	PostedDate                jsonx.String `json:"posted_date"`
	LikelyEventYear           jsonx.Number `json:"likely_event_year"`
	TimeRelation              jsonx.String `json:"time_relation"`
	TimelineMismatchRiskScore jsonx.Number `json:"timeline_mismatch_risk_score"`
	Why                       jsonx.String `json:"why"`
	WhatIsCorrect             jsonx.String `json:"what_is_correct"`
}

func (t *TimelineChecker) Check(ctx context.Context, content *StructuredContent, postedDate string) (*TimelineAssessment, error) {
	postedDate = strings.TrimSpace(postedDate)
	log := logger.FromContext(ctx)

	if t.requireCue && !HasTemporalCue(contentText(content)) {
		log.Info("No temporal cues found, timeline left unclear")
		return &TimelineAssessment{
			PostedDate:   postedDate,
			TimeRelation: RelationUnclear,
			Why:          noCueExplanation,
		}, nil
	}

	structured, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode structured content: %w", err)
	}
	posted, _ := json.Marshal(postedDate)

	raw, err := t.reasoner.GenerateJSON(ctx, fmt.Sprintf(timelinePrompt, posted, structured))
	if err != nil {
		return nil, fmt.Errorf("timeline check: %w", err)
	}

	var wire timelineWire
	if err := jsonx.Decode(raw, &wire); err != nil {
		return nil, fmt.Errorf("timeline check: %w", err)
	}

	out := &TimelineAssessment{
		PostedDate:                strings.TrimSpace(string(wire.PostedDate)),
		LikelyEventYear:           wire.LikelyEventYear.IntPtr(),
		TimeRelation:              normalizeRelation(string(wire.TimeRelation)),
		TimelineMismatchRiskScore: jsonx.Clamp(wire.TimelineMismatchRiskScore.Int(), 0, 100),
		Why:                       strings.TrimSpace(string(wire.Why)),
		WhatIsCorrect:             strings.TrimSpace(string(wire.WhatIsCorrect)),
	}
	if out.PostedDate == "" {
		out.PostedDate = postedDate
	}
	log.Info("Timeline checked",
		zap.String("relation", string(out.TimeRelation)),
		zap.Int("risk", out.TimelineMismatchRiskScore),
	)
	return out, nil
}

func contentText(c *StructuredContent) string {
	if c == nil {
		return ""
	}
	parts := []string{c.VideoSummary, c.CaptionSummary, c.CombinedSummary}
	for _, claim := range c.Claims {
		parts = append(parts, claim.Text)
		for _, e := range claim.Evidence {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HasTemporalCue reports whether text names an explicit year, month or
// calendar date.
func HasTemporalCue(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if dateRe.MatchString(text) || yearRe.MatchString(text) {
		return true
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return false
	}
	for _, tok := range doc.Tokens() {
		word := strings.Trim(tok.Text, "'’.,;:()[]\"")
		if _, ok := monthTokens[word]; ok {
			return true
		}
	}
	return false
}

package forensics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/jsonx"
	"github.com/vidforensics/backend/pkg/logger"
)

const structurePrompt = `
Return ONLY JSON.

{
  "video_summary": "",
  "caption_summary": "",
  "combined_summary": "",
  "claims": [
    {
      "claim": "",
      "claim_source": "video/caption/both",
      "claim_type": "date/person/place/event/number/other",
      "evidence": [{"source":"Video/Caption","text":""}]
    }
  ]
}

Rules:
- If caption is empty, set caption_summary="" and claim_source should be "video".
- Extract 8-12 CHECKABLE claims when possible. Prefer factual / testable claims.
- Evidence must be short and directly copied/summarized from the input.
- No markdown.

CAPTION:
%s

VIDEO_TEXT:
%s
`

// ClaimStructurer turns extracted video text and the caption into summaries
// and an ordered list of checkable claims. Unparseable output is fatal:
// every later stage depends on it.
type ClaimStructurer struct {
	reasoner Reasoner
}

func NewClaimStructurer(r Reasoner) *ClaimStructurer {
	return &ClaimStructurer{reasoner: r}
}

type structuredWire struct {
	VideoSummary    string      `json:"video_summary"`
	CaptionSummary  string      `json:"caption_summary"`
	CombinedSummary string      `json:"combined_summary"`
	Claims          []claimWire `json:"claims"`
}

type claimWire struct {
	Claim       string          `json:"claim"`
	ClaimSource string          `json:"claim_source"`
	ClaimType   string          `json:"claim_type"`
	Evidence    json.RawMessage `json:"evidence"`
}

func (s *ClaimStructurer) Structure(ctx context.Context, videoText, caption string) (*StructuredContent, error) {
	caption = strings.TrimSpace(caption)
	prompt := fmt.Sprintf(structurePrompt, caption, videoText)

	raw, err := s.reasoner.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("structure claims: %w", err)
	}

	var wire structuredWire
	if err := jsonx.Decode(raw, &wire); err != nil {
		return nil, fmt.Errorf("structure claims: %w", err)
	}

	out := normalizeStructured(wire, caption != "")
	logger.FromContext(ctx).Info("Structured claims", zap.Int("claims", len(out.Claims)))
	return out, nil
}

func normalizeStructured(w structuredWire, hasCaption bool) *StructuredContent {
	out := &StructuredContent{
		VideoSummary:    strings.TrimSpace(w.VideoSummary),
		CaptionSummary:  strings.TrimSpace(w.CaptionSummary),
		CombinedSummary: strings.TrimSpace(w.CombinedSummary),
		Claims:          make([]Claim, 0, len(w.Claims)),
	}
	if !hasCaption {
		out.CaptionSummary = ""
	}

	for _, c := range w.Claims {
		out.Claims = append(out.Claims, Claim{
			Text:     strings.TrimSpace(c.Claim),
			Source:   normalizeSource(c.ClaimSource, hasCaption),
			Type:     normalizeClaimType(c.ClaimType),
			Evidence: decodeEvidence(c.Evidence),
		})
	}
	return out
}

func normalizeClaimType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "date", "person", "place", "event", "number", "other":
		return t
	default:
		return "other"
	}
}

// decodeEvidence accepts the requested object list or a bare list of
// strings.
func decodeEvidence(raw json.RawMessage) []Evidence {
	out := []Evidence{}
	if len(raw) == 0 {
		return out
	}

	var objects []Evidence
	if err := json.Unmarshal(raw, &objects); err == nil {
		for _, e := range objects {
			if strings.TrimSpace(e.Text) != "" {
				out = append(out, Evidence{Source: strings.TrimSpace(e.Source), Text: strings.TrimSpace(e.Text)})
			}
		}
		return out
	}

	var texts []string
	if err := json.Unmarshal(raw, &texts); err == nil {
		for _, t := range texts {
			if strings.TrimSpace(t) != "" {
				out = append(out, Evidence{Source: "Video", Text: strings.TrimSpace(t)})
			}
		}
	}
	return out
}

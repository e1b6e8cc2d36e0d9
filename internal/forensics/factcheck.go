package forensics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/internal/search/web"
	"github.com/vidforensics/backend/pkg/jsonx"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/retry"
)

const noSourcesExplanation = "No web sources found for this claim."

const factCheckPrompt = `
Return ONLY JSON.

{
  "claim": %s,
  "claim_source": %s,
  "verdict": "true/false/mixed/unclear",
  "confidence": 0-100,
  "correct_information": "",
  "explanation": "",
  "citations": [{"url":"", "supporting_text":""}]
}

Rules:
- Use ONLY the SOURCES below.
- If SOURCES do not support the claim, verdict MUST be "unclear".
- If SOURCES contradict each other, verdict="mixed".
- Provide 1-3 citations. supporting_text must be short.
- No markdown.

SOURCES:
%s
`

// FactChecker verifies each claim against retrieved web evidence. It yields
// exactly one verdict per non-empty claim, in claim order.
type FactChecker struct {
	search   Searcher
	reasoner Reasoner
	retry    retry.Config
	workers  int
}

func NewFactChecker(search Searcher, reasoner Reasoner, s Settings) *FactChecker {
	workers := s.FactCheckWorkers
	if workers < 1 {
		workers = 1
	}
	return &FactChecker{search: search, reasoner: reasoner, retry: s.SearchRetry, workers: workers}
}

type verdictWire struct {
	Verdict            jsonx.String    `json:"verdict"`
	Confidence         jsonx.Number    `json:"confidence"`
	CorrectInformation jsonx.String    `json:"correct_information"`
	Explanation        jsonx.String    `json:"explanation"`
	Citations          json.RawMessage `json:"citations"`
}

func (f *FactChecker) Check(ctx context.Context, content *StructuredContent) ([]ClaimVerdict, error) {
	claims := checkableClaims(content)
	results := make([]ClaimVerdict, len(claims))

	if f.workers == 1 || len(claims) < 2 {
		for i, c := range claims {
			v, err := f.checkOne(ctx, i, len(claims), c)
			if err != nil {
				return nil, err
			}
			results[i] = v
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, c := range claims {
		i, c := i, c
		g.Go(func() error {
			v, err := f.checkOne(gctx, i, len(claims), c)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkableClaims(content *StructuredContent) []Claim {
	if content == nil {
		return nil
	}
	out := make([]Claim, 0, len(content.Claims))
	for _, c := range content.Claims {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if c.Source == "" {
			c.Source = SourceVideo
		}
		out = append(out, c)
	}
	return out
}

// checkOne only returns an error when the run itself was cancelled. Every
// other failure degrades the claim to unclear.
func (f *FactChecker) checkOne(ctx context.Context, i, total int, c Claim) (ClaimVerdict, error) {
	log := logger.FromContext(ctx).With(zap.Int("claim_index", i+1), zap.Int("claims", total))
	log.Info("Fact-checking claim", zap.String("claim", truncateForLog(c.Text)))

	sources, err := retry.DoWithResult(ctx, withOp(f.retry, "search"), func() ([]web.SearchResult, error) {
		return f.search.Search(ctx, c.Text)
	})
	if err != nil {
		if isCancellation(ctx, err) {
			return ClaimVerdict{}, err
		}
		log.Warn("Web search failed, claim marked unclear", zap.Error(err))
		metrics.ClaimDegradations.WithLabelValues("search_failed").Inc()
		return recordVerdict(unclearVerdict(c, fmt.Sprintf("Web search failed: %v", err))), nil
	}

	if len(sources) == 0 {
		metrics.ClaimDegradations.WithLabelValues("no_sources").Inc()
		return recordVerdict(unclearVerdict(c, noSourcesExplanation)), nil
	}

	v, err := f.reason(ctx, c, sources)
	if err != nil {
		if isCancellation(ctx, err) {
			return ClaimVerdict{}, err
		}
		log.Warn("Fact-check reasoning failed, claim marked unclear", zap.Error(err))
		metrics.ClaimDegradations.WithLabelValues("reasoning_failed").Inc()
		return recordVerdict(unclearVerdict(c, fmt.Sprintf("Fact-check could not be completed: %v", err))), nil
	}
	return recordVerdict(v), nil
}

func (f *FactChecker) reason(ctx context.Context, c Claim, sources []web.SearchResult) (ClaimVerdict, error) {
	claimJSON, _ := json.Marshal(c.Text)
	sourceJSON, _ := json.Marshal(string(c.Source))
	evidence, err := json.Marshal(map[string]interface{}{"results": sources})
	if err != nil {
		return ClaimVerdict{}, fmt.Errorf("encode sources: %w", err)
	}

	raw, err := f.reasoner.GenerateJSON(ctx, fmt.Sprintf(factCheckPrompt, claimJSON, sourceJSON, evidence))
	if err != nil {
		return ClaimVerdict{}, err
	}

	var wire verdictWire
	if err := jsonx.Decode(raw, &wire); err != nil {
		return ClaimVerdict{}, err
	}
	return backfillVerdict(c, wire), nil
}

// backfillVerdict fills anything the model left out with safe defaults. The
// claim text and source always come from the input so verdicts line up with
// claims.
func backfillVerdict(c Claim, w verdictWire) ClaimVerdict {
	v := ClaimVerdict{
		Claim:              c.Text,
		ClaimSource:        c.Source,
		Verdict:            normalizeVerdict(string(w.Verdict)),
		Confidence:         jsonx.Clamp(w.Confidence.Int(), 0, 100),
		CorrectInformation: strings.TrimSpace(string(w.CorrectInformation)),
		Explanation:        strings.TrimSpace(string(w.Explanation)),
		Citations:          []Citation{},
	}
	for _, cit := range decodeCitations(w.Citations) {
		cit.URL = strings.TrimSpace(cit.URL)
		cit.SupportingText = strings.TrimSpace(cit.SupportingText)
		if cit.URL == "" && cit.SupportingText == "" {
			continue
		}
		v.Citations = append(v.Citations, cit)
	}
	return v
}

// decodeCitations accepts citation objects or bare URL strings.
func decodeCitations(raw json.RawMessage) []Citation {
	if len(raw) == 0 {
		return nil
	}
	var objects []Citation
	if err := json.Unmarshal(raw, &objects); err == nil {
		return objects
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		out := make([]Citation, 0, len(urls))
		for _, u := range urls {
			out = append(out, Citation{URL: u})
		}
		return out
	}
	return nil
}

func unclearVerdict(c Claim, explanation string) ClaimVerdict {
	return ClaimVerdict{
		Claim:       c.Text,
		ClaimSource: c.Source,
		Verdict:     VerdictUnclear,
		Confidence:  0,
		Explanation: explanation,
		Citations:   []Citation{},
	}
}

func recordVerdict(v ClaimVerdict) ClaimVerdict {
	metrics.ClaimVerdicts.WithLabelValues(string(v.Verdict)).Inc()
	return v
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func truncateForLog(s string) string {
	r := []rune(s)
	if len(r) > 70 {
		return string(r[:70]) + "..."
	}
	return s
}

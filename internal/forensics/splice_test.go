package forensics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vidforensics/backend/pkg/apperr"
)

func TestDetectParsesDirectOutput(t *testing.T) {
	index := &fakeIndex{analyze: func(string) (string, error) {
		return "Result:\n{\"has_sudden_shifts\": \"yes\", \"splice_risk_score\": 140, \"summary\": \" Two locations. \"}", nil
	}}
	reasoner := &fakeReasoner{}

	got, err := NewSpliceDetector(index, reasoner).Detect(context.Background(), &VideoHandle{VideoID: "v"})
	require.NoError(t, err)
	require.True(t, got.HasSuddenShifts)
	require.Equal(t, 100, got.SpliceRiskScore)
	require.Equal(t, "Two locations.", got.Summary)
	require.Equal(t, 0, reasoner.calls())
}

func TestDetectToleratesListValuedSummary(t *testing.T) {
	index := &fakeIndex{analyze: func(string) (string, error) {
		return `{"has_sudden_shifts": true, "splice_risk_score": 45, "summary": ["Cut at 0:12.", "New room at 0:30."]}`, nil
	}}
	reasoner := &fakeReasoner{}

	got, err := NewSpliceDetector(index, reasoner).Detect(context.Background(), &VideoHandle{VideoID: "v"})
	require.NoError(t, err)
	require.Equal(t, 45, got.SpliceRiskScore)
	require.Equal(t, "Cut at 0:12. New room at 0:30.", got.Summary)
	require.Equal(t, 0, reasoner.calls())
}

func TestDetectRepairsProse(t *testing.T) {
	index := &fakeIndex{analyze: func(string) (string, error) {
		return "The footage is one coherent tutorial with title cards.", nil
	}}
	reasoner := &fakeReasoner{respond: func(prompt string) (string, error) {
		return `{"has_sudden_shifts": false, "splice_risk_score": "12", "summary": "coherent"}`, nil
	}}

	got, err := NewSpliceDetector(index, reasoner).Detect(context.Background(), &VideoHandle{VideoID: "v"})
	require.NoError(t, err)
	require.False(t, got.HasSuddenShifts)
	require.Equal(t, 12, got.SpliceRiskScore)
	require.Equal(t, 1, reasoner.calls())
	require.True(t, strings.HasPrefix(reasoner.prompts[0], spliceRepairPrompt))
	require.Contains(t, reasoner.prompts[0], "one coherent tutorial")
}

func TestDetectFailsWhenRepairFails(t *testing.T) {
	index := &fakeIndex{analyze: func(string) (string, error) { return "no json here", nil }}
	reasoner := &fakeReasoner{respond: func(string) (string, error) { return "still no json", nil }}

	_, err := NewSpliceDetector(index, reasoner).Detect(context.Background(), &VideoHandle{VideoID: "v"})
	require.ErrorIs(t, err, apperr.ErrMalformedModelOutput)
}

func TestDetectPropagatesAnalyzeErrors(t *testing.T) {
	boom := apperr.Transient("videoindex.analyze", errors.New("502"))
	index := &fakeIndex{analyze: func(string) (string, error) { return "", boom }}

	_, err := NewSpliceDetector(index, &fakeReasoner{}).Detect(context.Background(), &VideoHandle{VideoID: "v"})
	require.ErrorIs(t, err, apperr.ErrTransient)
}

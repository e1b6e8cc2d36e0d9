package forensics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vidforensics/backend/pkg/apperr"
)

const structuredOutput = "Sure!\n```json\n" + `{
  "video_summary": " A tutorial about bridges. ",
  "caption_summary": "Caption says it is new",
  "combined_summary": "Bridge tutorial",
  "claims": [
    {"claim": "The bridge opened in 1937", "claim_source": "CAPTION", "claim_type": "Date",
     "evidence": [{"source": "Caption", "text": "opened in 1937"}, {"source": "Video", "text": " "}]},
    {"claim": "It is 2.7 km long", "claim_source": "both", "claim_type": "measurement",
     "evidence": ["narrator says 2.7 km"]},
    {"claim": "Painted orange", "claim_source": "somewhere"}
  ]
}` + "\n```"

func TestStructureNormalizesClaims(t *testing.T) {
	reasoner := &fakeReasoner{respond: func(string) (string, error) { return structuredOutput, nil }}

	got, err := NewClaimStructurer(reasoner).Structure(context.Background(), "TRANSCRIPT: ...", "Brand new bridge!")
	require.NoError(t, err)

	require.Equal(t, "A tutorial about bridges.", got.VideoSummary)
	require.Equal(t, "Caption says it is new", got.CaptionSummary)
	require.Len(t, got.Claims, 3)

	require.Equal(t, SourceCaption, got.Claims[0].Source)
	require.Equal(t, "date", got.Claims[0].Type)
	require.Equal(t, []Evidence{{Source: "Caption", Text: "opened in 1937"}}, got.Claims[0].Evidence)

	require.Equal(t, SourceBoth, got.Claims[1].Source)
	require.Equal(t, "other", got.Claims[1].Type)
	require.Equal(t, []Evidence{{Source: "Video", Text: "narrator says 2.7 km"}}, got.Claims[1].Evidence)

	require.Equal(t, SourceVideo, got.Claims[2].Source)
	require.NotNil(t, got.Claims[2].Evidence)
	require.Empty(t, got.Claims[2].Evidence)

	require.True(t, strings.Contains(reasoner.prompts[0], "Brand new bridge!"))
}

func TestStructureWithoutCaption(t *testing.T) {
	reasoner := &fakeReasoner{respond: func(string) (string, error) { return structuredOutput, nil }}

	got, err := NewClaimStructurer(reasoner).Structure(context.Background(), "TRANSCRIPT: ...", "   ")
	require.NoError(t, err)

	require.Empty(t, got.CaptionSummary)
	for _, c := range got.Claims {
		require.Equal(t, SourceVideo, c.Source)
	}
}

func TestStructureFailsOnMalformedOutput(t *testing.T) {
	reasoner := &fakeReasoner{respond: func(string) (string, error) { return "I could not find any claims.", nil }}

	_, err := NewClaimStructurer(reasoner).Structure(context.Background(), "text", "")
	require.ErrorIs(t, err, apperr.ErrMalformedModelOutput)
}

func TestStructurePropagatesReasonerErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	reasoner := &fakeReasoner{respond: func(string) (string, error) { return "", boom }}

	_, err := NewClaimStructurer(reasoner).Structure(context.Background(), "text", "")
	require.ErrorIs(t, err, boom)
}

package authenticity

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidforensics/backend/internal/llm"
	"github.com/vidforensics/backend/internal/probe"
	"github.com/vidforensics/backend/internal/provenance"
	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/poll"
	"github.com/vidforensics/backend/pkg/retry"
)

type fakeProber struct {
	result *probe.Result
	err    error
}

func (f fakeProber) Probe(context.Context, string) (*probe.Result, error) { return f.result, f.err }

type fakeManifest struct {
	manifest *provenance.Manifest
	err      error
}

func (f fakeManifest) Read(context.Context, string) (*provenance.Manifest, error) {
	return f.manifest, f.err
}

type fakeMedia struct {
	states    []string
	output    string
	genErr    error
	uploadErr error
	// Transient failures returned before the call succeeds.
	uploadFailures int
	genFailures    int

	uploads     int
	generations int
	polls       int
	deleted     []string
	prompt      string
}

func (f *fakeMedia) Configured() bool { return true }

func (f *fakeMedia) Upload(context.Context, string, string) (*llm.MediaFile, error) {
	f.uploads++
	if f.uploads <= f.uploadFailures {
		return nil, apperr.Transient("gemini.upload", errors.New("503 service unavailable"))
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &llm.MediaFile{Name: "files/abc", State: llm.FileStateProcessing}, nil
}

func (f *fakeMedia) GetFile(_ context.Context, name string) (*llm.MediaFile, error) {
	state := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	return &llm.MediaFile{Name: name, URI: "https://files/abc", State: state}, nil
}

func (f *fakeMedia) DeleteFile(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeMedia) GenerateWithFile(_ context.Context, _ *llm.MediaFile, prompt string) (string, error) {
	f.generations++
	if f.generations <= f.genFailures {
		return "", apperr.Transient("gemini.generate", errors.New("429 too many requests"))
	}
	f.prompt = prompt
	return f.output, f.genErr
}

func videoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o600))
	return path
}

func testPoll() poll.Config {
	return poll.Config{
		Interval:    time.Millisecond,
		MaxAttempts: 5,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func testRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}
}

func sampleProbe() *probe.Result {
	return &probe.Result{Format: probe.Format{
		FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		Duration:   "12.5",
		Tags: map[string]string{
			"encoder":                  "Lavf60.3.100",
			"com.apple.quicktime.make": "Apple",
		},
	}}
}

func TestProvenanceCheckSummarizesMetadata(t *testing.T) {
	checker := NewProvenanceChecker(
		fakeProber{result: sampleProbe()},
		fakeManifest{manifest: &provenance.Manifest{Present: true, AIGenerated: true, Data: map[string]interface{}{"active_manifest": "m1"}}},
	)

	got, err := checker.Check(context.Background(), videoFile(t))
	require.NoError(t, err)
	require.Equal(t, "mov,mp4,m4a,3gp,3g2,mj2", got.Format)
	require.Equal(t, "12.5", got.Duration)
	require.Equal(t, "missing", got.CreationTime)
	require.Equal(t, "Apple", got.Device)
	require.True(t, got.C2PAAI)
	require.Equal(t, "m1", got.C2PAData["active_manifest"])
}

func TestProvenanceCheckToleratesMissingTools(t *testing.T) {
	checker := NewProvenanceChecker(
		fakeProber{err: probe.ErrUnavailable},
		fakeManifest{err: provenance.ErrUnavailable},
	)

	got, err := checker.Check(context.Background(), videoFile(t))
	require.NoError(t, err)
	require.Equal(t, "unknown", got.Duration)
	require.Equal(t, "unknown", got.Encoder)
	require.False(t, got.C2PAAI)
	require.Equal(t, provenance.ErrUnavailable.Error(), got.C2PAData["error"])
}

func TestProvenanceCheckNoManifestIsNotAnError(t *testing.T) {
	checker := NewProvenanceChecker(
		fakeProber{result: sampleProbe()},
		fakeManifest{manifest: &provenance.Manifest{Data: map[string]interface{}{"status": provenance.StatusNoManifest}}},
	)

	got, err := checker.Check(context.Background(), videoFile(t))
	require.NoError(t, err)
	require.False(t, got.C2PAAI)
	require.Equal(t, provenance.StatusNoManifest, got.C2PAData["status"])
}

func TestProvenanceCheckMissingFile(t *testing.T) {
	checker := NewProvenanceChecker(fakeProber{}, fakeManifest{})

	_, err := checker.Check(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDetectParsesJudgement(t *testing.T) {
	media := &fakeMedia{
		states: []string{llm.FileStateProcessing, llm.FileStateActive},
		output: "```json\n{\"is_ai\": true, \"trust_score\": \"20\", \"confidence\": 88, \"note\": \"Warped hands\"}\n```",
	}
	meta := &MetadataSummary{Summary: probe.Summarize(sampleProbe())}

	got := NewGenerationDetector(media, testPoll(), testRetry(), 0).Detect(context.Background(), videoFile(t), "video/mp4", meta, strings.Repeat("x", 3000))
	require.Equal(t, Detection{IsAI: true, TrustScore: 20, Confidence: 88, Note: "Warped hands"}, got)
	require.Equal(t, 2, media.polls)
	require.Equal(t, []string{"files/abc"}, media.deleted)
	require.Contains(t, media.prompt, `"format": "mov,mp4,m4a,3gp,3g2,mj2"`)
	require.NotContains(t, media.prompt, strings.Repeat("x", defaultContextChars+1))
}

func TestDetectFallsBackToNeutral(t *testing.T) {
	tests := []struct {
		name  string
		media *fakeMedia
		note  string
	}{
		{"unparseable output", &fakeMedia{states: []string{llm.FileStateActive}, output: "Looks real to me."}, unparseableNote},
		{"generation error", &fakeMedia{states: []string{llm.FileStateActive}, genErr: errors.New("quota")}, "Error: generate"},
		{"processing failed", &fakeMedia{states: []string{llm.FileStateFailed}}, "Error: wait for video processing"},
		{"upload error", &fakeMedia{uploadErr: errors.New("too large")}, "Error: upload video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewGenerationDetector(tt.media, testPoll(), testRetry(), 0).Detect(context.Background(), videoFile(t), "video/mp4", &MetadataSummary{}, "")
			require.False(t, got.IsAI)
			require.Equal(t, 50, got.TrustScore)
			require.Equal(t, 50, got.Confidence)
			require.True(t, strings.HasPrefix(got.Note, tt.note), got.Note)
		})
	}
}

func TestDetectRetriesTransientEngineErrors(t *testing.T) {
	media := &fakeMedia{
		states:         []string{llm.FileStateActive},
		output:         `{"is_ai": true, "trust_score": 15, "confidence": 90, "note": "Synthetic texture"}`,
		uploadFailures: 1,
		genFailures:    1,
	}

	got := NewGenerationDetector(media, testPoll(), testRetry(), 0).Detect(context.Background(), videoFile(t), "video/mp4", &MetadataSummary{}, "")
	require.Equal(t, Detection{IsAI: true, TrustScore: 15, Confidence: 90, Note: "Synthetic texture"}, got)
	require.Equal(t, 2, media.uploads)
	require.Equal(t, 2, media.generations)
}

func TestDetectGivesUpAfterRetries(t *testing.T) {
	media := &fakeMedia{states: []string{llm.FileStateActive}, uploadFailures: 5}

	got := NewGenerationDetector(media, testPoll(), testRetry(), 0).Detect(context.Background(), videoFile(t), "video/mp4", &MetadataSummary{}, "")
	require.Equal(t, 50, got.TrustScore)
	require.True(t, strings.HasPrefix(got.Note, "Error: upload video"), got.Note)
	require.Equal(t, 3, media.uploads)
}

func TestDetectToleratesListValuedNote(t *testing.T) {
	media := &fakeMedia{
		states: []string{llm.FileStateActive},
		output: `{"is_ai": false, "trust_score": 80, "confidence": 65, "note": ["Natural motion blur", "Consistent audio"]}`,
	}

	got := NewGenerationDetector(media, testPoll(), testRetry(), 0).Detect(context.Background(), videoFile(t), "video/mp4", &MetadataSummary{}, "")
	require.Equal(t, Detection{TrustScore: 80, Confidence: 65, Note: "Natural motion blur Consistent audio"}, got)
}

func TestDetectWithoutEngine(t *testing.T) {
	got := NewGenerationDetector(nil, testPoll(), testRetry(), 0).Detect(context.Background(), "clip.mp4", "", nil, "")
	require.Equal(t, neutral("Error: multimodal engine not configured"), got)
}

func TestBuildTrustReport(t *testing.T) {
	meta := &MetadataSummary{
		Summary:  probe.Summarize(sampleProbe()),
		C2PAAI:   true,
		C2PAData: map[string]interface{}{"active_manifest": "m1"},
	}

	r := BuildTrustReport(meta, Detection{TrustScore: 70, Confidence: 60})
	require.True(t, r.IsAIGenerated)
	require.Equal(t, 70, r.TrustScore)
	require.True(t, r.DetectionMethods.C2PAMetadata.Detected)
	require.Equal(t, "Apple", r.Metadata.Device)
	require.Equal(t, defaultNote, r.Note)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	methods := doc["detection_methods"].(map[string]interface{})
	require.Contains(t, methods, "c2pa_metadata")
	require.Contains(t, methods, "synthid_analysis")
}

func TestAnalyzerCombinesSignals(t *testing.T) {
	media := &fakeMedia{states: []string{llm.FileStateActive}, output: `{"is_ai": false, "trust_score": 85, "confidence": 70, "note": "Consistent lighting"}`}
	a := NewAnalyzer(
		NewProvenanceChecker(fakeProber{result: sampleProbe()}, fakeManifest{manifest: &provenance.Manifest{Data: map[string]interface{}{"status": provenance.StatusNoManifest}}}),
		NewGenerationDetector(media, testPoll(), testRetry(), 0),
	)

	r, err := a.Analyze(context.Background(), videoFile(t), "video/mp4")
	require.NoError(t, err)
	require.False(t, r.IsAIGenerated)
	require.Equal(t, 85, r.TrustScore)
	require.Equal(t, 70, r.Confidence)
	require.Equal(t, "Consistent lighting", r.Note)
}

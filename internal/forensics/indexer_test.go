package forensics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vidforensics/backend/pkg/apperr"
)

func TestIndexWaitsForAssetAndIndexing(t *testing.T) {
	index := &fakeIndex{
		uploadErrs: []error{
			apperr.Transient("videoindex.upload_asset", errors.New("connection reset")),
			apperr.FromStatus("videoindex.upload_asset", 503, []byte("busy")),
		},
		assetStatuses:   []string{"processing", "processing", "ready"},
		indexedStatuses: []string{"pending", "indexing", "Ready"},
	}

	h, err := NewAssetIndexer(index, testSettings()).Index(context.Background(), "/tmp/clip.mp4")
	require.NoError(t, err)
	require.Equal(t, &VideoHandle{IndexID: "idx-1", AssetID: "asset-1", VideoID: "video-1"}, h)
	require.Equal(t, 3, index.uploadCalls)
	require.Equal(t, 3, index.assetPolls)
	require.Equal(t, 3, index.indexedPolls)
	require.Equal(t, 1, index.startCalls)
}

func TestIndexDoesNotRetryRejectedUploads(t *testing.T) {
	index := &fakeIndex{uploadErrs: []error{apperr.FromStatus("videoindex.upload_asset", 400, []byte("unsupported codec"))}}

	_, err := NewAssetIndexer(index, testSettings()).Index(context.Background(), "/tmp/clip.mp4")
	require.Error(t, err)
	require.False(t, apperr.IsRetryable(err))
	require.Equal(t, 1, index.uploadCalls)
}

func TestIndexFailsOnFailedAsset(t *testing.T) {
	index := &fakeIndex{assetStatuses: []string{"processing", "failed"}}

	_, err := NewAssetIndexer(index, testSettings()).Index(context.Background(), "/tmp/clip.mp4")
	require.ErrorIs(t, err, apperr.ErrAssetProcessingFailed)
	require.Equal(t, 0, index.startCalls)
}

func TestIndexFailsOnFailedIndexing(t *testing.T) {
	index := &fakeIndex{indexedStatuses: []string{"pending", "error"}}

	_, err := NewAssetIndexer(index, testSettings()).Index(context.Background(), "/tmp/clip.mp4")
	require.ErrorIs(t, err, apperr.ErrAssetProcessingFailed)
}

func TestIndexTimesOutWhenNeverReady(t *testing.T) {
	index := &fakeIndex{indexedStatuses: []string{"pending"}}
	s := testSettings()
	s.IndexPoll.MaxAttempts = 4

	_, err := NewAssetIndexer(index, s).Index(context.Background(), "/tmp/clip.mp4")
	require.ErrorIs(t, err, apperr.ErrTimeout)
	require.NotErrorIs(t, err, apperr.ErrAssetProcessingFailed)
	require.Equal(t, 4, index.indexedPolls)
}

func TestExtractTruncatesText(t *testing.T) {
	index := &fakeIndex{analyze: func(prompt string) (string, error) {
		require.Contains(t, prompt, "TRANSCRIPT:")
		return "TRANSCRIPT:\nhello world, this is long", nil
	}}

	got, err := NewContentExtractor(index, 16).Extract(context.Background(), &VideoHandle{VideoID: "v"})
	require.NoError(t, err)
	require.Equal(t, "TRANSCRIPT:\nhell", got)
}

func TestExtractPropagatesErrors(t *testing.T) {
	index := &fakeIndex{analyze: func(string) (string, error) { return "", apperr.Timeout("analyze", "slow") }}

	_, err := NewContentExtractor(index, 0).Extract(context.Background(), &VideoHandle{VideoID: "v"})
	require.ErrorIs(t, err, apperr.ErrTimeout)
}

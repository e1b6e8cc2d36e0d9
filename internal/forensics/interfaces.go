package forensics

import (
	"context"

	"github.com/vidforensics/backend/internal/search/web"
	"github.com/vidforensics/backend/internal/videoindex"
)

// VideoIndex is the subset of the video understanding service the pipeline
// drives.
type VideoIndex interface {
	CreateIndex(ctx context.Context, name string) (string, error)
	UploadAsset(ctx context.Context, path string) (*videoindex.Asset, error)
	GetAsset(ctx context.Context, assetID string) (*videoindex.Asset, error)
	StartIndexing(ctx context.Context, indexID, assetID string) (*videoindex.IndexedAsset, error)
	GetIndexedAsset(ctx context.Context, indexID, indexedAssetID string) (*videoindex.IndexedAsset, error)
	Analyze(ctx context.Context, videoID, prompt string) (string, error)
}

// Reasoner answers a prompt that asks for a JSON object.
type Reasoner interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]web.SearchResult, error)
}

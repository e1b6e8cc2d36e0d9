package forensics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/videoindex"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/poll"
	"github.com/vidforensics/backend/pkg/retry"
)

// AssetIndexer creates an index, uploads the video and waits for both the
// asset and its indexed representation to become ready. Remote records are
// left in place.
type AssetIndexer struct {
	index     VideoIndex
	retry     retry.Config
	assetPoll poll.Config
	indexPoll poll.Config
	now       func() time.Time
}

func NewAssetIndexer(index VideoIndex, s Settings) *AssetIndexer {
	return &AssetIndexer{
		index:     index,
		retry:     s.UploadRetry,
		assetPoll: s.AssetPoll,
		indexPoll: s.IndexPoll,
		now:       time.Now,
	}
}

func (x *AssetIndexer) Index(ctx context.Context, videoPath string) (*VideoHandle, error) {
	log := logger.FromContext(ctx)

	name := fmt.Sprintf("forensics-%d-%s", x.now().Unix(), uuid.NewString()[:8])
	indexID, err := retry.DoWithResult(ctx, withOp(x.retry, "videoindex.create_index"), func() (string, error) {
		return x.index.CreateIndex(ctx, name)
	})
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	log.Info("Created index", zap.String("index_id", indexID))

	asset, err := retry.DoWithResult(ctx, withOp(x.retry, "videoindex.upload_asset"), func() (*videoindex.Asset, error) {
		return x.index.UploadAsset(ctx, videoPath)
	})
	if err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}
	log.Info("Uploaded asset", zap.String("asset_id", asset.ID), zap.String("status", asset.RawStatus))

	err = poll.Until(ctx, "asset", x.assetPoll, func(ctx context.Context) (poll.State, string, error) {
		a, err := retry.DoWithResult(ctx, withOp(x.retry, "videoindex.get_asset"), func() (*videoindex.Asset, error) {
			return x.index.GetAsset(ctx, asset.ID)
		})
		if err != nil {
			return poll.Pending, "", err
		}
		return pollState(a.Status()), a.RawStatus, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for asset %s: %w", asset.ID, err)
	}

	indexed, err := retry.DoWithResult(ctx, withOp(x.retry, "videoindex.start_indexing"), func() (*videoindex.IndexedAsset, error) {
		return x.index.StartIndexing(ctx, indexID, asset.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("start indexing: %w", err)
	}
	log.Info("Indexing started", zap.String("indexed_asset_id", indexed.ID))

	err = poll.Until(ctx, "indexing", x.indexPoll, func(ctx context.Context) (poll.State, string, error) {
		a, err := retry.DoWithResult(ctx, withOp(x.retry, "videoindex.get_indexed_asset"), func() (*videoindex.IndexedAsset, error) {
			return x.index.GetIndexedAsset(ctx, indexID, indexed.ID)
		})
		if err != nil {
			return poll.Pending, "", err
		}
		return pollState(a.Status()), a.RawStatus, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for indexing %s: %w", indexed.ID, err)
	}

	return &VideoHandle{IndexID: indexID, AssetID: asset.ID, VideoID: indexed.ID}, nil
}

func pollState(s videoindex.Status) poll.State {
	switch s {
	case videoindex.StatusReady:
		return poll.Ready
	case videoindex.StatusFailed:
		return poll.Failed
	default:
		return poll.Pending
	}
}

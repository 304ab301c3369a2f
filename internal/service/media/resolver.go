package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/publisher"
)

var (
	ErrMediaNotFound = errors.New("media not found")
	ErrSignURL       = errors.New("failed to sign media url")
)

// DerivativeNotReadyError means the placement rendition of an asset has not
// been produced yet. Processing runs asynchronously, so callers should retry.
type DerivativeNotReadyError struct {
	MediaID   string
	Placement models.Placement
}

func (e *DerivativeNotReadyError) Error() string {
	return fmt.Sprintf("%s derivative not ready for media %s", e.Placement, e.MediaID)
}

// AssetLoader loads media rows by id. Missing ids are simply absent from the result.
type AssetLoader interface {
	GetMediaAssets(ctx context.Context, ids []string) ([]models.MediaAsset, error)
}

// URLSigner signs storage paths in one batch. Paths that could not be signed
// are absent from the returned map.
type URLSigner interface {
	SignURLs(ctx context.Context, paths []string, ttl time.Duration) (map[string]string, error)
}

type Resolver struct {
	assets AssetLoader
	signer URLSigner
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolver(assets AssetLoader, signer URLSigner, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		assets: assets,
		signer: signer,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve turns media ids into signed URLs in the order given. Story
// placement takes exactly one image and uses its story rendition.
func (r *Resolver) Resolve(ctx context.Context, mediaIDs []string, placement models.Placement) ([]publisher.Media, error) {
	if len(mediaIDs) == 0 {
		if placement == models.PlacementStory {
			return nil, fmt.Errorf("%w: story requires one image", ErrMediaNotFound)
		}
		return nil, nil
	}

	rows, err := r.assets.GetMediaAssets(ctx, mediaIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load media assets: %w", err)
	}

	byID := make(map[string]models.MediaAsset, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	assets := make([]models.MediaAsset, 0, len(mediaIDs))
	for _, id := range mediaIDs {
		asset, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, id)
		}
		assets = append(assets, asset)
	}

	paths := make([]string, len(assets))
	if placement == models.PlacementStory {
		if len(assets) != 1 || assets[0].MediaType != models.MediaTypeImage {
			return nil, fmt.Errorf("%w: story requires exactly one image", ErrMediaNotFound)
		}
		path := assets[0].DerivedPath(models.PlacementStory)
		if path == "" {
			return nil, &DerivativeNotReadyError{MediaID: assets[0].ID, Placement: placement}
		}
		paths[0] = path
	} else {
		for i, asset := range assets {
			paths[i] = asset.StoragePath
		}
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	urls, err := r.signer.SignURLs(ctx, unique, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignURL, err)
	}

	resolved := make([]publisher.Media, 0, len(assets))
	for i, asset := range assets {
		url := urls[paths[i]]
		if url == "" {
			return nil, fmt.Errorf("%w: %s", ErrSignURL, asset.ID)
		}
		resolved = append(resolved, publisher.Media{
			ID:       asset.ID,
			URL:      url,
			Type:     asset.MediaType,
			MimeType: asset.MimeType,
		})
	}

	r.logger.Debug("Media resolved",
		zap.Int("count", len(resolved)),
		zap.Int("signed_paths", len(unique)),
		zap.String("placement", string(placement)))

	return resolved, nil
}

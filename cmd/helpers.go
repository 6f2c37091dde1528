package cmd

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"

	pubsubapi "cloud.google.com/go/pubsub/v2"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/publisher"
	pubsubpub "github.com/storefrontlab/catalog-crawler/internal/publisher/pubsub"
	"github.com/storefrontlab/catalog-crawler/internal/storage"
	"github.com/storefrontlab/catalog-crawler/internal/storage/gcs"
	"github.com/storefrontlab/catalog-crawler/internal/storage/local"
	"github.com/storefrontlab/catalog-crawler/internal/storage/postgres"
)

// newBlobStore builds the configured blob store. The returned closer is a
// no-op for the local provider.
func newBlobStore(ctx context.Context, a *app) (storage.BlobStore, func(), error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return blobs, func() { _ = client.Close() }, nil
	default:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, nil, err
		}
		return blobs, func() {}, nil
	}
}

// openDatabase connects the pgx pool and wraps it in the stores.
func openDatabase(ctx context.Context, a *app) (*pgxpool.Pool, *postgres.CatalogStore, *postgres.CheckpointStore, error) {
	pool, err := postgres.Connect(ctx, a.cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	return pool, postgres.NewCatalogStore(pool, a.logger), postgres.NewCheckpointStore(pool), nil
}

// newPublisher builds the completion publisher when Pub/Sub is enabled;
// otherwise it returns nil and notifications are skipped.
func newPublisher(ctx context.Context, a *app) (publisher.Publisher, func(), error) {
	if !a.cfg.PubSub.Enabled {
		return nil, func() {}, nil
	}
	client, err := pubsubapi.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpub.New(client.Publisher(a.cfg.PubSub.TopicName))
	return pub, func() { _ = client.Close() }, nil
}

// loadTargets reads and filters the shop target list.
func loadTargets(a *app, shopIDs []int64, urlFilter string) ([]catalog.ShopTarget, error) {
	if a.cfg.Scraper.TargetsFile == "" {
		return nil, fmt.Errorf("scraper.targets_file is not configured")
	}
	targets, err := catalog.LoadTargets(a.cfg.Scraper.TargetsFile)
	if err != nil {
		return nil, err
	}
	targets = catalog.FilterTargets(targets, shopIDs, urlFilter)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no shop targets left after filtering")
	}
	return targets, nil
}

// parseKinds maps the --entities flag onto entity kinds, defaulting to all
// four in pipeline order.
func parseKinds(entities []string) ([]catalog.EntityKind, error) {
	all := []catalog.EntityKind{
		catalog.KindShop,
		catalog.KindCollection,
		catalog.KindProduct,
		catalog.KindCollectionProduct,
	}
	if len(entities) == 0 {
		return all, nil
	}
	valid := make(map[string]catalog.EntityKind, len(all))
	for _, k := range all {
		valid[string(k)] = k
	}
	var out []catalog.EntityKind
	for _, e := range entities {
		kind, ok := valid[e]
		if !ok {
			return nil, fmt.Errorf("unknown entity %q (valid: shops, collections, products, collection_products)", e)
		}
		out = append(out, kind)
	}
	return out, nil
}

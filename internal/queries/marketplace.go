package queries

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/querycache"
)

// PlaceholderImage is shown when off-chain metadata cannot be fetched.
const PlaceholderImage = "/images/placeholder.png"

const enrichConcurrency = 4

// Marketplace is the public listing accessor.
type Marketplace struct {
	cache *querycache.Cache
	api   Backend
	log   *zap.Logger
}

func CollectionsKey() querycache.Key { return querycache.NewKey(ResMarketplaceCollections) }
func TokensKey(collectionID model.ID) querycache.Key {
	return querycache.NewKey(ResMarketplaceTokens, collectionID)
}
func ItemKey(tokenID model.ID) querycache.Key {
	return querycache.NewKey(ResMarketplaceItem, tokenID)
}
func AllTokensKey() querycache.Key { return querycache.NewKey(ResMarketplaceAllTokens) }

// Collections lists marketplace collections. It is the one query retried once.
func (m *Marketplace) Collections(ctx context.Context) ([]model.Collection, error) {
	return querycache.Get(ctx, m.cache, CollectionsKey(), m.api.MarketplaceCollections, querycache.WithRetry(1))
}

// Tokens lists the tokens of a collection; inert until collectionID is known.
func (m *Marketplace) Tokens(ctx context.Context, collectionID model.ID) ([]model.Token, error) {
	return querycache.Get(ctx, m.cache, TokensKey(collectionID), m.tokensFetcher(collectionID))
}

// Item returns one token with metadata enrichment; inert until tokenID is known.
func (m *Marketplace) Item(ctx context.Context, tokenID model.ID) (*model.Token, error) {
	return querycache.Get(ctx, m.cache, ItemKey(tokenID), m.itemFetcher(tokenID))
}

// AllTokens lists every token on the marketplace.
func (m *Marketplace) AllTokens(ctx context.Context) ([]model.Token, error) {
	return querycache.Get(ctx, m.cache, AllTokensKey(), func(ctx context.Context) ([]model.Token, error) {
		toks, err := m.api.MarketplaceAllTokens(ctx)
		if err != nil {
			return nil, err
		}
		return m.enrichAll(ctx, toks), nil
	})
}

// PrefetchCollections warms the collections listing.
func (m *Marketplace) PrefetchCollections(ctx context.Context) {
	querycache.Prefetch(ctx, m.cache, CollectionsKey(), m.api.MarketplaceCollections, querycache.WithRetry(1))
}

// PrefetchTokens warms a collection page before navigation.
func (m *Marketplace) PrefetchTokens(ctx context.Context, collectionID model.ID) {
	querycache.Prefetch(ctx, m.cache, TokensKey(collectionID), m.tokensFetcher(collectionID))
}

// PrefetchItem warms a token detail page before navigation.
func (m *Marketplace) PrefetchItem(ctx context.Context, tokenID model.ID) {
	querycache.Prefetch(ctx, m.cache, ItemKey(tokenID), m.itemFetcher(tokenID))
}

// CachedTokens reads a collection page without fetching.
func (m *Marketplace) CachedTokens(collectionID model.ID) ([]model.Token, bool) {
	return querycache.Peek[[]model.Token](m.cache, TokensKey(collectionID))
}

// CachedToken reads a token without fetching. When the exact item key is cold
// it falls back to FallbackScan over the broader listings.
func (m *Marketplace) CachedToken(tokenID model.ID) (model.Token, bool) {
	if t, ok := querycache.Peek[*model.Token](m.cache, ItemKey(tokenID)); ok && t != nil {
		return *t, true
	}
	return m.FallbackScan(tokenID)
}

// FallbackScan is the secondary lookup strategy: it joins across the
// all-tokens listing and every cached collection page and filters by id.
func (m *Marketplace) FallbackScan(tokenID model.ID) (model.Token, bool) {
	if tokenID.Empty() {
		return model.Token{}, false
	}
	for _, prefix := range []querycache.Key{
		AllTokensKey(),
		querycache.NewKey(ResMarketplaceTokens),
		querycache.NewKey(ResAuthorCollectionTokens),
	} {
		for _, e := range m.cache.Scan(prefix) {
			toks, ok := e.Data.([]model.Token)
			if !ok {
				continue
			}
			for _, t := range toks {
				if t.ID == tokenID {
					return t, true
				}
			}
		}
	}
	return model.Token{}, false
}

// ItemState is the observable state of a token detail query.
func (m *Marketplace) ItemState(tokenID model.ID) querycache.State {
	return m.cache.State(ItemKey(tokenID))
}

// InvalidateItem forces the next read of a token (and the listings holding it) to refetch.
func (m *Marketplace) InvalidateItem(tokenID model.ID, collectionID model.ID) {
	m.cache.Invalidate(ItemKey(tokenID))
	m.cache.Invalidate(AllTokensKey())
	if !collectionID.Empty() {
		m.cache.Invalidate(TokensKey(collectionID))
	}
}

func (m *Marketplace) tokensFetcher(collectionID model.ID) func(context.Context) ([]model.Token, error) {
	return func(ctx context.Context) ([]model.Token, error) {
		toks, err := m.api.MarketplaceTokens(ctx, collectionID.String())
		if err != nil {
			return nil, err
		}
		return m.enrichAll(ctx, toks), nil
	}
}

func (m *Marketplace) itemFetcher(tokenID model.ID) func(context.Context) (*model.Token, error) {
	return func(ctx context.Context) (*model.Token, error) {
		t, err := m.api.MarketplaceItem(ctx, tokenID.String())
		if err != nil {
			return nil, err
		}
		m.enrich(ctx, t)
		return t, nil
	}
}

// enrich fills missing metadata from the token's metadata URI. A failed fetch
// degrades to a placeholder and never fails the parent query.
func (m *Marketplace) enrich(ctx context.Context, t *model.Token) {
	if t == nil || t.Metadata.Name != "" || t.MetadataURI == "" {
		return
	}
	md, err := m.api.Metadata(ctx, t.MetadataURI)
	if err != nil || md == nil {
		m.log.Debug("metadata fallback", zap.String("token", t.ID.String()), zap.Error(err))
		t.Metadata = placeholder(*t)
		return
	}
	t.Metadata = *md
}

func (m *Marketplace) enrichAll(ctx context.Context, toks []model.Token) []model.Token {
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range toks {
		g.Go(func() error {
			m.enrich(ctx, &toks[i])
			return nil
		})
	}
	_ = g.Wait()
	return toks
}

func placeholder(t model.Token) model.TokenMetadata {
	name := t.Name
	if name == "" {
		name = "Token #" + t.ID.String()
	}
	return model.TokenMetadata{Name: name, Image: PlaceholderImage}
}

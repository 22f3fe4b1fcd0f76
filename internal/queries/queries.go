// Package queries exposes typed, cached accessors for each backend resource.
// Every accessor is keyed [resource, ids...] in a shared querycache.Cache.
package queries

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/querycache"
)

// Resource names used as the first key element.
const (
	ResAuthorByToken          = "author-by-token"
	ResAuthor                 = "author"
	ResAuthorSocial           = "author-social"
	ResAuthorCollections      = "author-collections"
	ResAuthorCollectionTokens = "author-collection-tokens"

	ResMarketplaceCollections = "marketplace-collections"
	ResMarketplaceTokens      = "marketplace-tokens"
	ResMarketplaceItem        = "marketplace-item"
	ResMarketplaceAllTokens   = "marketplace-all-tokens"

	ResProfileTokens      = "profile-tokens"
	ResProfileCollections = "profile-collections"
	ResProfileSales       = "profile-sales"
	ResProfilePurchases   = "profile-purchases"
)

// Backend is the subset of api.Client the accessors call.
type Backend interface {
	AuthorByToken(ctx context.Context, tokenID string) (*model.Author, error)
	Author(ctx context.Context, id string) (*model.Author, error)
	AuthorSocial(ctx context.Context, id string) ([]model.SocialLink, error)
	AuthorCollections(ctx context.Context, id string) ([]model.Collection, error)
	AuthorCollectionTokens(ctx context.Context, id, collectionID string) ([]model.Token, error)

	ProfileTokens(ctx context.Context, collectionID string) ([]model.Token, error)
	ProfileCollections(ctx context.Context, partnerID string) ([]model.Collection, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error)
	ProfileSales(ctx context.Context, partnerID string) ([]model.Trade, error)
	ProfilePurchases(ctx context.Context, partnerID string) ([]model.Trade, error)

	MarketplaceCollections(ctx context.Context) ([]model.Collection, error)
	MarketplaceTokens(ctx context.Context, collectionID string) ([]model.Token, error)
	MarketplaceItem(ctx context.Context, tokenID string) (*model.Token, error)
	MarketplaceAllTokens(ctx context.Context) ([]model.Token, error)
	Metadata(ctx context.Context, uri string) (*model.TokenMetadata, error)
}

// Viewer identifies the signed-in user; profile keys are scoped by it.
type Viewer interface {
	UserID() model.ID
}

// Queries bundles all resource accessors over one cache.
type Queries struct {
	Author      *Author
	Marketplace *Marketplace
	Profile     *Profile
	Sales       *Sales
}

// New wires every accessor to the same cache and backend.
func New(c *querycache.Cache, b Backend, v Viewer, log *zap.Logger) *Queries {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Marketplace{cache: c, api: b, log: log}
	return &Queries{
		Author:      &Author{cache: c, api: b, meta: m},
		Marketplace: m,
		Profile:     &Profile{cache: c, api: b, viewer: v, meta: m},
		Sales:       &Sales{cache: c, api: b, viewer: v},
	}
}

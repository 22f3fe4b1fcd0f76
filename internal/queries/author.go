package queries

import (
	"context"

	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/querycache"
)

// Author is the public creator-profile accessor.
type Author struct {
	cache *querycache.Cache
	api   Backend
	meta  *Marketplace
}

func AuthorByTokenKey(tokenID model.ID) querycache.Key {
	return querycache.NewKey(ResAuthorByToken, tokenID)
}
func AuthorKey(id model.ID) querycache.Key       { return querycache.NewKey(ResAuthor, id) }
func AuthorSocialKey(id model.ID) querycache.Key { return querycache.NewKey(ResAuthorSocial, id) }
func AuthorCollectionsKey(id model.ID) querycache.Key {
	return querycache.NewKey(ResAuthorCollections, id)
}
func AuthorCollectionTokensKey(id, collectionID model.ID) querycache.Key {
	return querycache.NewKey(ResAuthorCollectionTokens, id, collectionID)
}

// ByToken resolves the creator of a token.
func (a *Author) ByToken(ctx context.Context, tokenID model.ID) (*model.Author, error) {
	return querycache.Get(ctx, a.cache, AuthorByTokenKey(tokenID), func(ctx context.Context) (*model.Author, error) {
		return a.api.AuthorByToken(ctx, tokenID.String())
	})
}

// Get loads an author profile.
func (a *Author) Get(ctx context.Context, id model.ID) (*model.Author, error) {
	return querycache.Get(ctx, a.cache, AuthorKey(id), a.authorFetcher(id))
}

// Social loads an author's social links.
func (a *Author) Social(ctx context.Context, id model.ID) ([]model.SocialLink, error) {
	return querycache.Get(ctx, a.cache, AuthorSocialKey(id), func(ctx context.Context) ([]model.SocialLink, error) {
		return a.api.AuthorSocial(ctx, id.String())
	})
}

// Collections lists an author's collections.
func (a *Author) Collections(ctx context.Context, id model.ID) ([]model.Collection, error) {
	return querycache.Get(ctx, a.cache, AuthorCollectionsKey(id), a.collectionsFetcher(id))
}

// CollectionTokens lists the tokens of one author collection; inert until both ids are known.
func (a *Author) CollectionTokens(ctx context.Context, id, collectionID model.ID) ([]model.Token, error) {
	return querycache.Get(ctx, a.cache, AuthorCollectionTokensKey(id, collectionID),
		func(ctx context.Context) ([]model.Token, error) {
			toks, err := a.api.AuthorCollectionTokens(ctx, id.String(), collectionID.String())
			if err != nil {
				return nil, err
			}
			return a.meta.enrichAll(ctx, toks), nil
		})
}

// Prefetch warms an author page: profile and collections.
func (a *Author) Prefetch(ctx context.Context, id model.ID) {
	querycache.Prefetch(ctx, a.cache, AuthorKey(id), a.authorFetcher(id))
	querycache.Prefetch(ctx, a.cache, AuthorCollectionsKey(id), a.collectionsFetcher(id))
}

// Cached reads an author without fetching.
func (a *Author) Cached(id model.ID) (*model.Author, bool) {
	return querycache.Peek[*model.Author](a.cache, AuthorKey(id))
}

// CachedCollections reads an author's collections without fetching.
func (a *Author) CachedCollections(id model.ID) ([]model.Collection, bool) {
	return querycache.Peek[[]model.Collection](a.cache, AuthorCollectionsKey(id))
}

// State is the observable state of the author profile query.
func (a *Author) State(id model.ID) querycache.State {
	return a.cache.State(AuthorKey(id))
}

func (a *Author) authorFetcher(id model.ID) func(context.Context) (*model.Author, error) {
	return func(ctx context.Context) (*model.Author, error) { return a.api.Author(ctx, id.String()) }
}

func (a *Author) collectionsFetcher(id model.ID) func(context.Context) ([]model.Collection, error) {
	return func(ctx context.Context) ([]model.Collection, error) {
		return a.api.AuthorCollections(ctx, id.String())
	}
}

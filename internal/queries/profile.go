package queries

import (
	"context"
	"fmt"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/querycache"
)

// Profile is the signed-in user's inventory accessor. Keys carry the viewer's
// id so one user's cached inventory is never served to another.
type Profile struct {
	cache  *querycache.Cache
	api    Backend
	viewer Viewer
	meta   *Marketplace
}

func ProfileTokensKey(userID, collectionID model.ID) querycache.Key {
	return querycache.NewKey(ResProfileTokens, userID, collectionID)
}
func ProfileCollectionsKey(userID, partnerID model.ID) querycache.Key {
	return querycache.NewKey(ResProfileCollections, userID, partnerID)
}

// Tokens lists the viewer's tokens in a collection.
func (p *Profile) Tokens(ctx context.Context, collectionID model.ID) ([]model.Token, error) {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return nil, errs.ErrUnauthorized
	}
	return querycache.Get(ctx, p.cache, ProfileTokensKey(uid, collectionID), p.tokensFetcher(collectionID))
}

// Collections lists the viewer's collections for a partner.
func (p *Profile) Collections(ctx context.Context, partnerID model.ID) ([]model.Collection, error) {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return nil, errs.ErrUnauthorized
	}
	return querycache.Get(ctx, p.cache, ProfileCollectionsKey(uid, partnerID), p.collectionsFetcher(partnerID))
}

// PrefetchTokens warms an inventory page. It does nothing while signed out.
func (p *Profile) PrefetchTokens(ctx context.Context, collectionID model.ID) {
	if uid := p.viewer.UserID(); !uid.Empty() {
		querycache.Prefetch(ctx, p.cache, ProfileTokensKey(uid, collectionID), p.tokensFetcher(collectionID))
	}
}

// PrefetchCollections warms the viewer's collections for a partner.
func (p *Profile) PrefetchCollections(ctx context.Context, partnerID model.ID) {
	if uid := p.viewer.UserID(); !uid.Empty() {
		querycache.Prefetch(ctx, p.cache, ProfileCollectionsKey(uid, partnerID), p.collectionsFetcher(partnerID))
	}
}

// CachedTokens reads the viewer's inventory page without fetching.
func (p *Profile) CachedTokens(collectionID model.ID) ([]model.Token, bool) {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return nil, false
	}
	return querycache.Peek[[]model.Token](p.cache, ProfileTokensKey(uid, collectionID))
}

// CachedCollections reads the viewer's collections without fetching.
func (p *Profile) CachedCollections(partnerID model.ID) ([]model.Collection, bool) {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return nil, false
	}
	return querycache.Peek[[]model.Collection](p.cache, ProfileCollectionsKey(uid, partnerID))
}

// Update saves the viewer's profile and invalidates the author views of it.
func (p *Profile) Update(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return nil, errs.ErrUnauthorized
	}
	u, err := p.api.UpdateProfile(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	p.cache.Invalidate(AuthorKey(uid))
	p.cache.Invalidate(AuthorSocialKey(uid))
	return u, nil
}

// InvalidateInventory marks every cached inventory page of the viewer stale.
func (p *Profile) InvalidateInventory() {
	uid := p.viewer.UserID()
	if uid.Empty() {
		return
	}
	p.cache.Invalidate(querycache.NewKey(ResProfileTokens, uid))
	p.cache.Invalidate(querycache.NewKey(ResProfileCollections, uid))
}

// Forget drops every profile-scoped entry, e.g. on logout.
func (p *Profile) Forget() {
	for _, res := range []string{ResProfileTokens, ResProfileCollections, ResProfileSales, ResProfilePurchases} {
		p.cache.Remove(querycache.NewKey(res))
	}
}

func (p *Profile) tokensFetcher(collectionID model.ID) func(context.Context) ([]model.Token, error) {
	return func(ctx context.Context) ([]model.Token, error) {
		toks, err := p.api.ProfileTokens(ctx, collectionID.String())
		if err != nil {
			return nil, err
		}
		return p.meta.enrichAll(ctx, toks), nil
	}
}

func (p *Profile) collectionsFetcher(partnerID model.ID) func(context.Context) ([]model.Collection, error) {
	return func(ctx context.Context) ([]model.Collection, error) {
		return p.api.ProfileCollections(ctx, partnerID.String())
	}
}

package queries

import (
	"context"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/querycache"
)

// Sales is the viewer's sales and purchase history accessor.
type Sales struct {
	cache  *querycache.Cache
	api    Backend
	viewer Viewer
}

func SalesKey(userID, partnerID model.ID) querycache.Key {
	return querycache.NewKey(ResProfileSales, userID, partnerID)
}
func PurchasesKey(userID, partnerID model.ID) querycache.Key {
	return querycache.NewKey(ResProfilePurchases, userID, partnerID)
}

// Sales lists the viewer's sales for a partner.
func (s *Sales) Sales(ctx context.Context, partnerID model.ID) ([]model.Trade, error) {
	uid := s.viewer.UserID()
	if uid.Empty() {
		return nil, errs.ErrUnauthorized
	}
	return querycache.Get(ctx, s.cache, SalesKey(uid, partnerID), s.salesFetcher(partnerID))
}

// Purchases lists the viewer's purchases for a partner.
func (s *Sales) Purchases(ctx context.Context, partnerID model.ID) ([]model.Trade, error) {
	uid := s.viewer.UserID()
	if uid.Empty() {
		return nil, errs.ErrUnauthorized
	}
	return querycache.Get(ctx, s.cache, PurchasesKey(uid, partnerID), s.purchasesFetcher(partnerID))
}

// PrefetchSales warms the sales history. It does nothing while signed out.
func (s *Sales) PrefetchSales(ctx context.Context, partnerID model.ID) {
	if uid := s.viewer.UserID(); !uid.Empty() {
		querycache.Prefetch(ctx, s.cache, SalesKey(uid, partnerID), s.salesFetcher(partnerID))
	}
}

// PrefetchPurchases warms the purchase history. It does nothing while signed out.
func (s *Sales) PrefetchPurchases(ctx context.Context, partnerID model.ID) {
	if uid := s.viewer.UserID(); !uid.Empty() {
		querycache.Prefetch(ctx, s.cache, PurchasesKey(uid, partnerID), s.purchasesFetcher(partnerID))
	}
}

// CachedSales reads the sales history without fetching.
func (s *Sales) CachedSales(partnerID model.ID) ([]model.Trade, bool) {
	uid := s.viewer.UserID()
	if uid.Empty() {
		return nil, false
	}
	return querycache.Peek[[]model.Trade](s.cache, SalesKey(uid, partnerID))
}

// CachedPurchases reads the purchase history without fetching.
func (s *Sales) CachedPurchases(partnerID model.ID) ([]model.Trade, bool) {
	uid := s.viewer.UserID()
	if uid.Empty() {
		return nil, false
	}
	return querycache.Peek[[]model.Trade](s.cache, PurchasesKey(uid, partnerID))
}

func (s *Sales) salesFetcher(partnerID model.ID) func(context.Context) ([]model.Trade, error) {
	return func(ctx context.Context) ([]model.Trade, error) {
		return s.api.ProfileSales(ctx, partnerID.String())
	}
}

func (s *Sales) purchasesFetcher(partnerID model.ID) func(context.Context) ([]model.Trade, error) {
	return func(ctx context.Context) ([]model.Trade, error) {
		return s.api.ProfilePurchases(ctx, partnerID.String())
	}
}

package api

import (
	"net/url"
	"strings"
)

// Endpoints is the fixed path table of the marketplace backend. Paths are
// relative to the client's base URL; only the prefixes are configurable.
type Endpoints struct {
	AuthPrefix        string
	AuthorPrefix      string
	ProfilePrefix     string
	MarketplacePrefix string
	TokenPrefix       string
	VerifyPrefix      string
	OrderPrefix       string
}

// DefaultEndpoints mirrors the production deployment.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthPrefix:        "",
		AuthorPrefix:      "/author",
		ProfilePrefix:     "/profile",
		MarketplacePrefix: "/marketplace",
		TokenPrefix:       "/token",
		VerifyPrefix:      "/verify",
		OrderPrefix:       "/order",
	}
}

func join(prefix string, segs ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix, "/"))
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}

func seg(id string) string { return url.PathEscape(id) }

func (e Endpoints) Login() string    { return join(e.AuthPrefix, "login") }
func (e Endpoints) Register() string { return join(e.AuthPrefix, "register") }
func (e Endpoints) AutoAuth() string { return join(e.AuthPrefix, "auto") }

func (e Endpoints) AuthorByToken(tokenID string) string {
	return join(e.AuthorPrefix, "by-token", seg(tokenID))
}
func (e Endpoints) Author(id string) string       { return join(e.AuthorPrefix, seg(id)) }
func (e Endpoints) AuthorSocial(id string) string { return join(e.AuthorPrefix, seg(id), "social") }
func (e Endpoints) AuthorCollections(id string) string {
	return join(e.AuthorPrefix, seg(id), "collections")
}
func (e Endpoints) AuthorCollectionTokens(id, collectionID string) string {
	return join(e.AuthorPrefix, seg(id), "collections", seg(collectionID), "tokens")
}

func (e Endpoints) ProfileTokens() string      { return join(e.ProfilePrefix, "tokens") }
func (e Endpoints) ProfileCollections() string { return join(e.ProfilePrefix, "collections") }

// ProfileUpdate keeps the trailing slash the backend routes on.
func (e Endpoints) ProfileUpdate() string    { return strings.TrimRight(e.ProfilePrefix, "/") + "/" }
func (e Endpoints) ProfileSales() string     { return join(e.ProfilePrefix, "sales") }
func (e Endpoints) ProfilePurchases() string { return join(e.ProfilePrefix, "purchases") }

func (e Endpoints) MarketplaceCollections() string { return join(e.MarketplacePrefix, "collections") }
func (e Endpoints) MarketplaceTokens(collectionID string) string {
	return join(e.MarketplacePrefix, "tokens", seg(collectionID))
}
func (e Endpoints) MarketplaceItem(tokenID string) string {
	return join(e.MarketplacePrefix, "item", seg(tokenID))
}
func (e Endpoints) MarketplaceAllTokens() string { return join(e.MarketplacePrefix, "all-tokens") }

func (e Endpoints) TokenStatus(tokenID string) string { return join(e.TokenPrefix, "status", seg(tokenID)) }
func (e Endpoints) Verify(payload string) string      { return join(e.VerifyPrefix, seg(payload)) }
func (e Endpoints) CreateOrder() string               { return join(e.OrderPrefix, "create") }

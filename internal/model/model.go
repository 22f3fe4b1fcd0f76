// Package model defines the marketplace records exchanged with the REST backend.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ID is an opaque backend identifier. The backend emits ids both as JSON numbers
// and as strings; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the textual id.
func (id ID) String() string { return string(id) }

// Empty reports whether the id is unset.
func (id ID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// User is the backend's account record. Only ID is interpreted by the client.
type User struct {
	ID        ID     `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	PartnerID ID     `json:"partner_id,omitempty"`
}

// Session is the client's authentication state.
type Session struct {
	User            *User  `json:"user"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// AuthEnvelope is returned by login and auto-auth.
type AuthEnvelope struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
	Message     string `json:"message,omitempty"`
}

// TokenMetadata is the off-chain description of a token.
type TokenMetadata struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// Token is a marketplace NFT listing.
type Token struct {
	ID           ID            `json:"id"`
	Name         string        `json:"name"`
	Price        float64       `json:"price"`
	Sold         *time.Time    `json:"sold,omitempty"`
	CollectionID ID            `json:"collection_id"`
	MetadataURI  string        `json:"metadata_uri,omitempty"`
	Metadata     TokenMetadata `json:"metadata"`
}

// IsSold reports whether the token carries a sold timestamp.
func (t Token) IsSold() bool { return t.Sold != nil && !t.Sold.IsZero() }

// Collection is a marketplace collection.
type Collection struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	AuthorID    ID     `json:"author_id,omitempty"`
}

// Author is a public creator profile.
type Author struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// SocialLink is one external profile of an author.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// ProfileUpdate is the body of PUT /profile/.
type ProfileUpdate struct {
	Bio         string       `json:"bio"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	SocialLinks []SocialLink `json:"socialLinks"`
}

// Trade is a sale or purchase record of the current profile.
type Trade struct {
	ID           ID        `json:"id"`
	TokenID      ID        `json:"token_id"`
	CollectionID ID        `json:"collection_id"`
	Amount       float64   `json:"amount"`
	BuyerID      ID        `json:"buyer_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerifyResult is the decoded form of an encrypted checkout payload.
type VerifyResult struct {
	Token      *Token `json:"token"`
	Email      string `json:"email,omitempty"`
	OutTradeNo string `json:"out_trade_no,omitempty"`
}

// Order is the body of POST /order/create.
type Order struct {
	ID           ID      `json:"id"`
	CollectionID ID      `json:"collection_id"`
	Amount       float64 `json:"amount"`
	BuyerID      ID      `json:"buyer_id"`
	OutTradeNo   string  `json:"out_trade_no,omitempty"`
}

// OrderResult is the order-create response.
type OrderResult struct {
	PaymentLink string `json:"payment_link"`
	Message     string `json:"message,omitempty"`
}

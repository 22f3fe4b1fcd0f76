package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/model"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Login exchanges credentials for a session envelope.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthEnvelope, error) {
	var env model.AuthEnvelope
	if err := c.Post(ctx, c.ep.Login(), credentials{Email: email, Password: password}, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Register creates an account. The backend requires email verification before login.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.Post(ctx, c.ep.Register(), credentials{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// AutoAuth exchanges an email for a session without a password.
func (c *Client) AutoAuth(ctx context.Context, email string) (*model.AuthEnvelope, error) {
	var env model.AuthEnvelope
	if err := c.Post(ctx, c.ep.AutoAuth(), credentials{Email: email}, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ---- author ----

func (c *Client) AuthorByToken(ctx context.Context, tokenID string) (*model.Author, error) {
	var a model.Author
	if err := c.Get(ctx, c.ep.AuthorByToken(tokenID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Author(ctx context.Context, id string) (*model.Author, error) {
	var a model.Author
	if err := c.Get(ctx, c.ep.Author(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) AuthorSocial(ctx context.Context, id string) ([]model.SocialLink, error) {
	return getList[model.SocialLink](ctx, c, c.ep.AuthorSocial(id))
}

func (c *Client) AuthorCollections(ctx context.Context, id string) ([]model.Collection, error) {
	return getList[model.Collection](ctx, c, c.ep.AuthorCollections(id))
}

func (c *Client) AuthorCollectionTokens(ctx context.Context, id, collectionID string) ([]model.Token, error) {
	return getList[model.Token](ctx, c, c.ep.AuthorCollectionTokens(id, collectionID))
}

// ---- profile (bearer required) ----

func (c *Client) ProfileTokens(ctx context.Context, collectionID string) ([]model.Token, error) {
	return postList[model.Token](ctx, c, c.ep.ProfileTokens(), map[string]string{"collection_id": collectionID})
}

func (c *Client) ProfileCollections(ctx context.Context, partnerID string) ([]model.Collection, error) {
	return postList[model.Collection](ctx, c, c.ep.ProfileCollections(), map[string]string{"partner_id": partnerID})
}

func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	var u model.User
	if err := c.Put(ctx, c.ep.ProfileUpdate(), upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ProfileSales(ctx context.Context, partnerID string) ([]model.Trade, error) {
	return postList[model.Trade](ctx, c, c.ep.ProfileSales(), map[string]string{"partner_id": partnerID})
}

func (c *Client) ProfilePurchases(ctx context.Context, partnerID string) ([]model.Trade, error) {
	return postList[model.Trade](ctx, c, c.ep.ProfilePurchases(), map[string]string{"partner_id": partnerID})
}

// ---- marketplace ----

func (c *Client) MarketplaceCollections(ctx context.Context) ([]model.Collection, error) {
	return getList[model.Collection](ctx, c, c.ep.MarketplaceCollections())
}

func (c *Client) MarketplaceTokens(ctx context.Context, collectionID string) ([]model.Token, error) {
	return getList[model.Token](ctx, c, c.ep.MarketplaceTokens(collectionID))
}

func (c *Client) MarketplaceItem(ctx context.Context, tokenID string) (*model.Token, error) {
	var t model.Token
	if err := c.Get(ctx, c.ep.MarketplaceItem(tokenID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) MarketplaceAllTokens(ctx context.Context) ([]model.Token, error) {
	return getList[model.Token](ctx, c, c.ep.MarketplaceAllTokens())
}

// Metadata fetches an off-chain metadata document.
func (c *Client) Metadata(ctx context.Context, uri string) (*model.TokenMetadata, error) {
	var m model.TokenMetadata
	if err := c.GetAbsolute(ctx, uri, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ---- checkout ----

// TokenStatus reports whether a token can be bought.
func (c *Client) TokenStatus(ctx context.Context, tokenID string) (bool, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, c.ep.TokenStatus(tokenID), &raw); err != nil {
		return false, err
	}
	ok, err := parseAvailability(raw)
	if err != nil {
		return false, fmt.Errorf("token status %s: %w", tokenID, err)
	}
	return ok, nil
}

// Verify decodes an encrypted checkout payload.
func (c *Client) Verify(ctx context.Context, payload string) (*model.VerifyResult, error) {
	var vr model.VerifyResult
	if err := c.Get(ctx, c.ep.Verify(payload), &vr); err != nil {
		return nil, err
	}
	if vr.Token == nil || vr.Token.ID.Empty() {
		return nil, fmt.Errorf("verify: no token: %w", errs.ErrMalformedResponse)
	}
	return &vr, nil
}

// CreateOrder submits an order. A missing payment_link is not checked here.
func (c *Client) CreateOrder(ctx context.Context, o model.Order) (*model.OrderResult, error) {
	var res model.OrderResult
	if err := c.Post(ctx, c.ep.CreateOrder(), o, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ---- decoding helpers ----

func getList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, err
	}
	return unwrapList[T](raw)
}

func postList[T any](ctx context.Context, c *Client, path string, body any) ([]T, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, path, body, &raw); err != nil {
		return nil, err
	}
	return unwrapList[T](raw)
}

// unwrapList accepts a bare array or an envelope {"data": [...]}.
func unwrapList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrMalformedResponse, err)
		}
		return unwrapList[T](env.Data)
	}
	out := []T{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedResponse, err)
	}
	return out, nil
}

// parseAvailability interprets the status endpoint's loose payload:
// a bool, a string, or an object with available/status/isAvailable and sold.
func parseAvailability(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "available", "active":
			return true, nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return false, nil
		}
		return v, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrMalformedResponse, err)
	}
	if v, ok := obj["sold"]; ok && truthy(v) {
		return false, nil
	}
	for _, k := range []string{"available", "isAvailable", "status", "data"} {
		if v, ok := obj[k]; ok {
			return parseAvailability(v)
		}
	}
	return false, fmt.Errorf("no availability field: %w", errs.ErrMalformedResponse)
}

// truthy treats null, false, "", "false", "0" and 0 as false; anything else
// (a timestamp, true, a non-zero number) as true.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		s = strings.ToLower(strings.TrimSpace(s))
		return s != "" && s != "false" && s != "0"
	}
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n != 0
	}
	return true
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/model"
)

func newTestClient(t *testing.T, routes func(r chi.Router), opts ...Option) *Client {
	t.Helper()
	r := chi.NewRouter()
	routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Non2xx_IsTypedError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/marketplace/item/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such token"})
		})
	})

	_, err := c.MarketplaceItem(context.Background(), "42")
	require.Error(t, err)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	require.Equal(t, http.StatusNotFound, he.Status)
	require.Equal(t, "no such token", he.Message)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusForbidden, errs.ErrUnauthorized},
		{http.StatusTooManyRequests, errs.ErrRateLimited},
		{http.StatusNotFound, errs.ErrNotFound},
	}
	for _, tt := range tests {
		he := &HTTPError{Status: tt.status}
		if !errors.Is(he, tt.want) {
			t.Fatalf("status %d: want Is(%v)", tt.status, tt.want)
		}
	}
}

func TestClient_BearerAndBody(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody map[string]string
	c := newTestClient(t, func(r chi.Router) {
		r.Post("/api/profile/tokens", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &gotBody)
			writeJSON(w, http.StatusOK, map[string]any{"data": []model.Token{{ID: "1", Name: "a"}}})
		})
	}, WithTokenSource(func() string { return "tok" }))

	toks, err := c.ProfileTokens(context.Background(), "c9")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, model.ID("1"), toks[0].ID)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "c9", gotBody["collection_id"])
}

func TestClient_NoRetry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/marketplace/collections", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
	})
	_, err := c.MarketplaceCollections(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestClient_ThrottleRespectsContext(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/marketplace/collections", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusOK, []model.Collection{})
		})
	}, WithRateLimit(0.01))

	_, err := c.MarketplaceCollections(context.Background())
	require.NoError(t, err)

	// the next token is far beyond this deadline
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.MarketplaceCollections(ctx)
	require.ErrorIs(t, err, errs.ErrRateLimited)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = c.MarketplaceCollections(canceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, errs.ErrRateLimited)
	require.EqualValues(t, 1, calls.Load())
}

func TestClient_NumericIDs(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/marketplace/all-tokens", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[{"id":7,"collection_id":3,"price":1.5},{"id":"8","collection_id":null}]`)
		})
	})
	toks, err := c.MarketplaceAllTokens(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.ID("7"), toks[0].ID)
	require.Equal(t, model.ID("3"), toks[0].CollectionID)
	require.Equal(t, model.ID("8"), toks[1].ID)
	require.True(t, toks[1].CollectionID.Empty())
}

func TestClient_EmptyBodyIsMalformed(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/author/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	_, err := c.Author(context.Background(), "1")
	require.ErrorIs(t, err, errs.ErrMalformedResponse)
}

func TestClient_VerifyPathKeepsPayload(t *testing.T) {
	t.Parallel()
	var got string
	c := newTestClient(t, func(r chi.Router) {
		r.Get("/api/verify/{payload}", func(w http.ResponseWriter, r *http.Request) {
			got = chi.URLParam(r, "payload")
			writeJSON(w, http.StatusOK, map[string]any{"token": map[string]any{"id": 5}, "email": "a@b.com"})
		})
	})
	vr, err := c.Verify(context.Background(), "iv:abc==")
	require.NoError(t, err)
	require.Equal(t, "iv:abc==", got)
	require.Equal(t, "a@b.com", vr.Email)
	require.Equal(t, model.ID("5"), vr.Token.ID)
}

func TestParseAvailability(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
		err  bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`"available"`, true, false},
		{`"sold"`, false, false},
		{`{"available":true}`, true, false},
		{`{"status":false}`, false, false},
		{`{"available":true,"sold":"2024-01-01T00:00:00Z"}`, false, false},
		{`{"available":true,"sold":null}`, true, false},
		{`{"data":{"isAvailable":true}}`, true, false},
		{`{"other":1}`, false, true},
	}
	for _, tt := range tests {
		got, err := parseAvailability(json.RawMessage(tt.in))
		if tt.err {
			if err == nil {
				t.Fatalf("%s: want error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: got %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestEndpoints_Table(t *testing.T) {
	t.Parallel()
	ep := DefaultEndpoints()
	require.Equal(t, "/login", ep.Login())
	require.Equal(t, "/auto", ep.AutoAuth())
	require.Equal(t, "/author/by-token/9", ep.AuthorByToken("9"))
	require.Equal(t, "/author/1/collections/2/tokens", ep.AuthorCollectionTokens("1", "2"))
	require.Equal(t, "/profile/", ep.ProfileUpdate())
	require.Equal(t, "/token/status/3", ep.TokenStatus("3"))
	require.Equal(t, "/order/create", ep.CreateOrder())
	require.Equal(t, "/author/a%2Fb", ep.Author("a/b"))
	require.Equal(t, "/verify/a%2Fb", ep.Verify("a/b"))

	ep.AuthorPrefix, ep.VerifyPrefix = "/api/author/", "/api/verify"
	require.Equal(t, "/api/author/1/social", ep.AuthorSocial("1"))
	require.Equal(t, "/api/verify/abc", ep.Verify("abc"))
}

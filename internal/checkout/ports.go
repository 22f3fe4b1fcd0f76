package checkout

import (
	"context"
	"time"

	"github.com/and161185/nftmarket/internal/model"
)

// Backend is the subset of api.Client the flow calls.
type Backend interface {
	TokenStatus(ctx context.Context, tokenID string) (bool, error)
	MarketplaceItem(ctx context.Context, tokenID string) (*model.Token, error)
	Verify(ctx context.Context, payload string) (*model.VerifyResult, error)
	AutoAuth(ctx context.Context, email string) (*model.AuthEnvelope, error)
	CreateOrder(ctx context.Context, o model.Order) (*model.OrderResult, error)
}

// Session is the auth store as seen by the flow.
type Session interface {
	IsAuthenticated() bool
	UserID() model.ID
	SetAuthData(ctx context.Context, user *model.User, token string) error
}

// Navigator performs in-app navigation to a route.
type Navigator interface {
	Navigate(route string)
}

// Redirector leaves the app for an external URL.
type Redirector interface {
	// Open opens link in a new top-level context.
	Open(ctx context.Context, link string) error
	// Assign replaces the current context with link.
	Assign(ctx context.Context, link string) error
}

// Handoff offers a payment link to a hosting parent. accepted=false means the
// parent did not claim it.
type Handoff interface {
	DeliverPaymentLink(ctx context.Context, link string) (accepted bool, err error)
}

// Timer can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

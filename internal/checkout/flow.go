// Package checkout drives the purchase of a single token: resolving the item,
// resolving a buyer, creating the order and redirecting to payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/api"
	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/model"
)

// User-facing messages.
const (
	MsgVerifyFailed   = "This checkout link is invalid or has expired"
	MsgUnavailable    = "This item is no longer available"
	MsgNotFound       = "Item not found"
	MsgLoadFailed     = "Failed to load item"
	MsgAuthFailed     = "Could not sign you in with this email"
	MsgNoBuyer        = "Please sign in or enter your email to continue"
	MsgOrderFailed    = "Failed to create order"
	MsgNoPaymentLink  = "Payment link not received"
	MsgRedirectFailed = "Could not open the payment page"
)

const (
	DefaultListingRoute   = "/marketplace"
	DefaultInventoryRoute = "/profile"
	DefaultSoldDelay      = 3 * time.Second
	DefaultInventoryDelay = 2 * time.Second
)

// Config holds navigation targets and delays.
type Config struct {
	ListingRoute           string
	InventoryRoute         string
	SoldRedirectDelay      time.Duration
	InventoryRedirectDelay time.Duration
	// InPlaceNavigation replaces the current context instead of opening a new
	// one, for hosts that block programmatic new windows.
	InPlaceNavigation bool
}

// DefaultConfig returns the stock routes and delays.
func DefaultConfig() Config {
	return Config{
		ListingRoute:           DefaultListingRoute,
		InventoryRoute:         DefaultInventoryRoute,
		SoldRedirectDelay:      DefaultSoldDelay,
		InventoryRedirectDelay: DefaultInventoryDelay,
	}
}

// State is a snapshot of the flow.
type State struct {
	Status           Status
	Item             *model.Token
	Email            string // prefill from a verified payload
	OutTradeNo       string
	Message          string
	Err              error
	PaymentLink      string
	PaymentInitiated bool
}

func (s State) clone() State {
	if s.Item != nil {
		it := *s.Item
		s.Item = &it
	}
	return s
}

// Option configures a Flow.
type Option func(*Flow)

func WithConfig(c Config) Option         { return func(f *Flow) { f.cfg = c } }
func WithLogger(l *zap.Logger) Option    { return func(f *Flow) { f.log = l } }
func WithNavigator(n Navigator) Option   { return func(f *Flow) { f.nav = n } }
func WithRedirector(r Redirector) Option { return func(f *Flow) { f.redir = r } }
func WithHandoff(h Handoff) Option       { return func(f *Flow) { f.handoff = h } }
func WithScheduler(s Scheduler) Option   { return func(f *Flow) { f.sched = s } }

// OnPaymentInitiated registers a hook run after a successful redirect.
func OnPaymentInitiated(fn func(model.Token)) Option { return func(f *Flow) { f.onPaid = fn } }

// Flow is the checkout state machine. Methods are safe for concurrent use;
// results of a superseded FetchItem are discarded.
type Flow struct {
	api  Backend
	sess Session

	cfg     Config
	log     *zap.Logger
	nav     Navigator
	redir   Redirector
	handoff Handoff
	sched   Scheduler
	onPaid  func(model.Token)

	mu     sync.Mutex
	st     State
	gen    uint64
	timers []Timer
	subs   map[chan State]struct{}
}

// New builds an idle flow.
func New(b Backend, s Session, opts ...Option) *Flow {
	f := &Flow{
		api:   b,
		sess:  s,
		cfg:   DefaultConfig(),
		log:   zap.NewNop(),
		nav:   nopNavigator{},
		redir: nopRedirector{},
		sched: realScheduler{},
		st:    State{Status: StatusIdle},
		subs:  map[chan State]struct{}{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// State returns a snapshot.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.clone()
}

// Subscribe delivers state changes until cancel is called. Only the latest
// state is buffered.
func (f *Flow) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	ch <- f.st.clone()
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Reset cancels pending redirects and returns to idle.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.stopTimersLocked()
	f.st = State{Status: StatusIdle}
	f.publishLocked()
}

// FetchItem resolves raw into a purchasable item. raw is a token id or an
// encrypted checkout payload (see ParseItemRef).
func (f *Flow) FetchItem(ctx context.Context, raw string) error {
	f.mu.Lock()
	if !CanTransitionTo(f.st.Status, StatusLoading) {
		from := f.st.Status
		f.mu.Unlock()
		return fmt.Errorf("fetch item: %w: %s -> %s", ErrIllegalTransition, from, StatusLoading)
	}
	f.gen++
	gen := f.gen
	f.stopTimersLocked()
	f.st = State{Status: StatusLoading}
	f.publishLocked()
	f.mu.Unlock()

	ref := ParseItemRef(raw)
	switch {
	case ref.Value == "":
		err := fmt.Errorf("fetch item: empty reference: %w", errs.ErrNotFound)
		f.settle(gen, StatusNotFound, MsgNotFound, err)
		return err
	case ref.Encrypted:
		return f.loadVerified(ctx, gen, ref.Value)
	default:
		return f.loadListed(ctx, gen, ref.Value)
	}
}

func (f *Flow) loadVerified(ctx context.Context, gen uint64, payload string) error {
	res, err := f.api.Verify(ctx, payload)
	if err == nil && (res == nil || res.Token == nil || res.Token.ID.Empty()) {
		err = errs.ErrMalformedResponse
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", errs.ErrVerifyFailed, err)
		f.log.Info("checkout payload rejected", zap.Error(err))
		f.settle(gen, StatusError, MsgVerifyFailed, err)
		return err
	}
	tok := *res.Token
	if tok.IsSold() {
		return f.unavailable(gen, &tok)
	}
	email := strings.TrimSpace(res.Email)
	f.apply(gen, func(st *State) {
		st.Status = StatusReady
		st.Item = &tok
		st.OutTradeNo = res.OutTradeNo
		st.Email = email
	})
	return nil
}

func (f *Flow) loadListed(ctx context.Context, gen uint64, id string) error {
	ok, err := f.api.TokenStatus(ctx, id)
	if err != nil {
		return f.loadFailed(gen, err)
	}
	if !ok {
		return f.unavailable(gen, nil)
	}
	tok, err := f.api.MarketplaceItem(ctx, id)
	if err == nil && tok == nil {
		err = errs.ErrMalformedResponse
	}
	if err != nil {
		return f.loadFailed(gen, err)
	}
	if tok.IsSold() {
		return f.unavailable(gen, tok)
	}
	f.apply(gen, func(st *State) {
		st.Status = StatusReady
		st.Item = tok
	})
	return nil
}

func (f *Flow) loadFailed(gen uint64, err error) error {
	err = fmt.Errorf("fetch item: %w", err)
	if errors.Is(err, errs.ErrNotFound) {
		f.settle(gen, StatusNotFound, MsgNotFound, err)
		return err
	}
	f.log.Warn("checkout item load failed", zap.Error(err))
	f.settle(gen, StatusError, MsgLoadFailed, err)
	return err
}

// unavailable shows the sold notice and schedules the return to the listing.
func (f *Flow) unavailable(gen uint64, tok *model.Token) error {
	err := fmt.Errorf("fetch item: %w", errs.ErrUnavailable)
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return err
	}
	f.st.Status = StatusError
	f.st.Item = tok
	f.st.Message = MsgUnavailable
	f.st.Err = err
	f.scheduleLocked(gen, f.cfg.SoldRedirectDelay, f.cfg.ListingRoute)
	f.publishLocked()
	return err
}

// HandlePayment resolves the buyer, creates the order and redirects to the
// payment link. email is used for passwordless sign-in when the caller is
// anonymous.
func (f *Flow) HandlePayment(ctx context.Context, email string) error {
	f.mu.Lock()
	if f.st.Item == nil {
		f.mu.Unlock()
		return fmt.Errorf("handle payment: %w", errs.ErrNoItem)
	}
	if !CanTransitionTo(f.st.Status, StatusProcessing) {
		from := f.st.Status
		f.mu.Unlock()
		return fmt.Errorf("handle payment: %w: %s -> %s", ErrIllegalTransition, from, StatusProcessing)
	}
	gen := f.gen
	item := *f.st.Item
	outTradeNo := f.st.OutTradeNo
	f.st.Status = StatusProcessing
	f.st.Message = ""
	f.st.Err = nil
	f.publishLocked()
	f.mu.Unlock()

	var buyer model.ID
	if f.sess.IsAuthenticated() {
		buyer = f.sess.UserID()
	} else if email = strings.TrimSpace(email); email != "" {
		env, err := f.api.AutoAuth(ctx, email)
		if err == nil && (env == nil || env.AccessToken == "" || env.User == nil || env.User.ID.Empty()) {
			err = errs.ErrMalformedResponse
		}
		if err != nil {
			return f.payFailed(gen, MsgAuthFailed, fmt.Errorf("auto-auth: %w", err))
		}
		if err := f.sess.SetAuthData(ctx, env.User, env.AccessToken); err != nil {
			// the session is adopted in memory even when persisting fails
			f.log.Warn("auto-auth session not persisted", zap.Error(err))
		}
		buyer = env.User.ID
	}
	if buyer.Empty() {
		return f.payFailed(gen, MsgNoBuyer, fmt.Errorf("handle payment: %w: %w", errs.ErrNoBuyer, errs.ErrUnauthorized))
	}

	order := model.Order{
		ID:           item.ID,
		CollectionID: item.CollectionID,
		Amount:       item.Price,
		BuyerID:      buyer,
		OutTradeNo:   outTradeNo,
	}
	res, err := f.api.CreateOrder(ctx, order)
	if err != nil {
		return f.payFailed(gen, orderMessage(err), fmt.Errorf("create order: %w", err))
	}
	link := ""
	if res != nil {
		link = strings.TrimSpace(res.PaymentLink)
	}
	if link == "" {
		return f.payFailed(gen, MsgNoPaymentLink, fmt.Errorf("create order: %w", errs.ErrNoPaymentLink))
	}

	inPlace, err := f.dispatch(ctx, link)
	if err != nil {
		return f.payFailed(gen, MsgRedirectFailed, fmt.Errorf("redirect: %w", err))
	}

	f.mu.Lock()
	if gen == f.gen {
		f.st.Status = StatusRedirected
		f.st.PaymentLink = link
		f.st.PaymentInitiated = true
		if !inPlace {
			f.scheduleLocked(gen, f.cfg.InventoryRedirectDelay, f.cfg.InventoryRoute)
		}
		f.publishLocked()
	}
	f.mu.Unlock()

	f.log.Info("payment initiated",
		zap.String("token_id", item.ID.String()),
		zap.String("buyer_id", buyer.String()),
		zap.Bool("in_place", inPlace))
	if f.onPaid != nil {
		f.onPaid(item)
	}
	return nil
}

// dispatch hands link to the parent when one is attached, falling back to
// opening it directly. inPlace reports that the current context was replaced.
func (f *Flow) dispatch(ctx context.Context, link string) (inPlace bool, err error) {
	if f.handoff != nil {
		accepted, err := f.handoff.DeliverPaymentLink(ctx, link)
		if err != nil {
			f.log.Warn("payment link hand-off failed", zap.Error(err))
		}
		if accepted {
			return false, nil
		}
	}
	if f.cfg.InPlaceNavigation {
		return true, f.redir.Assign(ctx, link)
	}
	if err := f.redir.Open(ctx, link); err != nil {
		f.log.Warn("open payment link failed, navigating in place", zap.Error(err))
		return true, f.redir.Assign(ctx, link)
	}
	return false, nil
}

func (f *Flow) payFailed(gen uint64, msg string, err error) error {
	f.log.Warn("payment failed", zap.Error(err))
	f.settle(gen, StatusFailed, msg, err)
	return err
}

func (f *Flow) settle(gen uint64, to Status, msg string, err error) {
	f.apply(gen, func(st *State) {
		st.Status = to
		st.Message = msg
		st.Err = err
	})
}

func (f *Flow) apply(gen uint64, fn func(*State)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return false
	}
	from := f.st.Status
	fn(&f.st)
	if !CanTransitionTo(from, f.st.Status) {
		f.log.DPanic("unexpected checkout transition",
			zap.Stringer("from", from), zap.Stringer("to", f.st.Status))
	}
	f.publishLocked()
	return true
}

func (f *Flow) scheduleLocked(gen uint64, d time.Duration, route string) {
	t := f.sched.AfterFunc(d, func() {
		f.mu.Lock()
		live := gen == f.gen
		f.mu.Unlock()
		if live {
			f.nav.Navigate(route)
		}
	})
	f.timers = append(f.timers, t)
}

func (f *Flow) stopTimersLocked() {
	for _, t := range f.timers {
		t.Stop()
	}
	f.timers = nil
}

func (f *Flow) publishLocked() {
	st := f.st.clone()
	for ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func orderMessage(err error) string {
	var he *api.HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return MsgOrderFailed
}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopRedirector struct{}

func (nopRedirector) Open(context.Context, string) error   { return nil }
func (nopRedirector) Assign(context.Context, string) error { return nil }

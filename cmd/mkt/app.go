package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/api"
	"github.com/and161185/nftmarket/internal/bridge"
	"github.com/and161185/nftmarket/internal/checkout"
	"github.com/and161185/nftmarket/internal/config"
	"github.com/and161185/nftmarket/internal/limiter"
	"github.com/and161185/nftmarket/internal/migrate"
	"github.com/and161185/nftmarket/internal/model"
	"github.com/and161185/nftmarket/internal/queries"
	"github.com/and161185/nftmarket/internal/querycache"
	"github.com/and161185/nftmarket/internal/repository/postgres"
	"github.com/and161185/nftmarket/internal/session"
	"github.com/and161185/nftmarket/internal/session/filestore"
)

// app is the wired client core the subcommands run against.
type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	api    *api.Client
	cache  *querycache.Cache
	sess   *session.Store
	q      *queries.Queries
	parent *bridge.Client // nil unless embedded
	nav    *printNavigator

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) (*app, error) {
	out = &lockedWriter{w: out}
	a := &app{cfg: cfg, log: log, out: out}

	var sess *session.Store
	a.api = api.NewClient(cfg.APIBaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		api.WithLogger(log),
		api.WithRateLimit(cfg.RequestRPS),
		api.WithTokenSource(func() string { return sess.Token() }),
	)

	pers, lim, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	sess = session.NewStore(a.api, pers, log, session.WithLimiter(lim))
	if err := sess.Restore(ctx); err != nil {
		log.Warn("session not restored", zap.Error(err))
	}
	a.sess = sess

	a.cache = querycache.New(querycache.Options{StaleTime: cfg.StaleTime, CacheTime: cfg.CacheTime}, log)
	gcCtx, stopGC := context.WithCancel(context.Background())
	go a.cache.Run(gcCtx, cfg.GCInterval)
	a.closers = append(a.closers, stopGC)

	a.q = queries.New(a.cache, a.api, sess, log)

	if cfg.ParentBridgeURL != "" {
		c, err := bridge.Dial(ctx, cfg.ParentBridgeURL, cfg.ParentOrigin, cfg.BridgeAckTimeout, log)
		if err != nil {
			// running standalone is a valid fallback
			log.Warn("parent bridge unavailable", zap.Error(err))
		} else {
			a.parent = c
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
	}
	a.nav = &printNavigator{out: out, parent: a.parent, log: log, done: make(chan string, 4)}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (session.Persister, limiter.Limiter, error) {
	mem := limiter.NewMemory(limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	switch a.cfg.Store {
	case config.StoreMemory:
		return session.NewMemoryPersister(), mem, nil
	case config.StorePostgres:
		if err := migrate.Up(ctx, a.cfg.PGDSN, a.log); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, a.cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := postgres.NewSessionRepo(db, a.cfg.PGScope)
		lim := limiter.NewPG(db.Pool, a.cfg.PGScope, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
		return repo, lim, nil
	default:
		fs, err := filestore.New(a.cfg.StateDir, a.cfg.Passphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("open state dir: %w", err)
		}
		return fs, mem, nil
	}
}

// checkout builds a flow bound to this shell's navigation and redirect ports.
func (a *app) checkout() *checkout.Flow {
	opts := []checkout.Option{
		checkout.WithConfig(checkout.Config{
			ListingRoute:           checkout.DefaultListingRoute,
			InventoryRoute:         checkout.DefaultInventoryRoute,
			SoldRedirectDelay:      a.cfg.SoldRedirectDelay,
			InventoryRedirectDelay: a.cfg.InventoryRedirectDelay,
			InPlaceNavigation:      a.cfg.InPlaceNavigation,
		}),
		checkout.WithLogger(a.log),
		checkout.WithNavigator(a.nav),
		checkout.WithRedirector(printRedirector{out: a.out}),
		checkout.OnPaymentInitiated(func(t model.Token) {
			a.q.Marketplace.InvalidateItem(t.ID, t.CollectionID)
			a.q.Profile.InvalidateInventory()
		}),
	}
	if a.parent != nil {
		opts = append(opts, checkout.WithHandoff(a.parent))
	}
	return checkout.New(a.api, a.sess, opts...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// printNavigator prints in-app navigation and mirrors it to the parent.
type printNavigator struct {
	out    io.Writer
	parent *bridge.Client
	log    *zap.Logger
	done   chan string
}

func (n *printNavigator) Navigate(route string) {
	fmt.Fprintf(n.out, "-> %s\n", route)
	if n.parent != nil {
		if err := n.parent.NotifyRouteChange(context.Background(), route); err != nil {
			n.log.Debug("route change not delivered", zap.Error(err))
		}
	}
	select {
	case n.done <- route:
	default:
	}
}

// printRedirector stands in for a browser: links are printed for the user to open.
type printRedirector struct{ out io.Writer }

func (r printRedirector) Open(_ context.Context, link string) error {
	_, err := fmt.Fprintf(r.out, "open payment page: %s\n", link)
	return err
}

func (r printRedirector) Assign(_ context.Context, link string) error {
	_, err := fmt.Fprintf(r.out, "continue at: %s\n", link)
	return err
}

// lockedWriter serializes output from timers firing on other goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

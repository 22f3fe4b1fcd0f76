package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/bridge"
	"github.com/and161185/nftmarket/internal/config"
	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/migrate"
	"github.com/and161185/nftmarket/internal/model"
)

var errUsage = errors.New("usage")

func need(ok bool, msg string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", errUsage, msg)
}

// run executes one subcommand against a.
func run(ctx context.Context, a *app, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {

	case "register", "login":
		email := fs.String("email", "", "email")
		password := fs.String("password", "", "password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(*email != "" && *password != "", "need -email and -password"); err != nil {
			return err
		}
		if cmd == "register" {
			msg, err := a.sess.Register(ctx, *email, *password)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, msg)
			return nil
		}
		if err := a.sess.Login(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")

	case "logout":
		a.q.Profile.Forget()
		if err := a.sess.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")

	case "whoami":
		printJSON(a.out, a.sess.Snapshot())

	case "collections":
		cols, err := a.q.Marketplace.Collections(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, cols)

	case "tokens", "profile-tokens":
		collection := fs.String("collection", "", "collection id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(*collection != "", "need -collection"); err != nil {
			return err
		}
		var (
			toks []model.Token
			err  error
		)
		if cmd == "tokens" {
			toks, err = a.q.Marketplace.Tokens(ctx, model.ID(*collection))
		} else {
			toks, err = a.q.Profile.Tokens(ctx, model.ID(*collection))
		}
		if err != nil {
			return err
		}
		printJSON(a.out, toks)

	case "item":
		id := fs.String("id", "", "token id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(*id != "", "need -id"); err != nil {
			return err
		}
		tok, err := a.q.Marketplace.Item(ctx, model.ID(*id))
		if err != nil {
			return err
		}
		printJSON(a.out, tok)

	case "all-tokens":
		toks, err := a.q.Marketplace.AllTokens(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, toks)

	case "author":
		id := fs.String("id", "", "author id")
		token := fs.String("token", "", "token id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need((*id == "") != (*token == ""), "need exactly one of -id or -token"); err != nil {
			return err
		}
		return a.showAuthor(ctx, model.ID(*id), model.ID(*token))

	case "profile-collections", "sales", "purchases":
		partner := fs.String("partner", "", "partner id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *partner == "" {
			if u := a.sess.Snapshot().User; u != nil {
				*partner = u.PartnerID.String()
			}
		}
		if err := need(*partner != "", "need -partner"); err != nil {
			return err
		}
		pid := model.ID(*partner)
		var (
			v   any
			err error
		)
		switch cmd {
		case "profile-collections":
			v, err = a.q.Profile.Collections(ctx, pid)
		case "sales":
			v, err = a.q.Sales.Sales(ctx, pid)
		default:
			v, err = a.q.Sales.Purchases(ctx, pid)
		}
		if err != nil {
			return err
		}
		printJSON(a.out, v)

	case "update-profile":
		bio := fs.String("bio", "", "bio")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		social := fs.String("social", "", "platform=url pairs, comma separated")
		if err := fs.Parse(args); err != nil {
			return err
		}
		links, err := parseSocial(*social)
		if err != nil {
			return err
		}
		u, err := a.q.Profile.Update(ctx, model.ProfileUpdate{
			Bio: *bio, FirstName: *first, LastName: *last, SocialLinks: links,
		})
		if err != nil {
			return err
		}
		printJSON(a.out, u)

	case "checkout":
		id := fs.String("id", "", "token id or encrypted payload")
		email := fs.String("email", "", "email for passwordless sign-in")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need(*id != "", "need -id"); err != nil {
			return err
		}
		return a.runCheckout(ctx, *id, *email)

	case "serve-parent":
		addr := fs.String("addr", ":8090", "listen address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.serveParent(ctx, *addr)

	case "migrate":
		if a.cfg.Store != config.StorePostgres {
			return need(false, "migrate needs -store postgres")
		}
		v, err := migrate.Version(ctx, a.cfg.PGDSN, a.log)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "schema version %d\n", v)

	default:
		return need(false, "unknown command "+cmd)
	}
	return nil
}

func (a *app) showAuthor(ctx context.Context, id, token model.ID) error {
	var (
		au  *model.Author
		err error
	)
	if token != "" {
		au, err = a.q.Author.ByToken(ctx, token)
	} else {
		au, err = a.q.Author.Get(ctx, id)
	}
	if err != nil {
		return err
	}
	view := struct {
		Author      *model.Author      `json:"author"`
		Social      []model.SocialLink `json:"social"`
		Collections []model.Collection `json:"collections"`
	}{Author: au}

	// secondary sections degrade to empty
	if view.Social, err = a.q.Author.Social(ctx, au.ID); err != nil {
		a.log.Warn("author social", zap.Error(err))
	}
	if view.Collections, err = a.q.Author.Collections(ctx, au.ID); err != nil {
		a.log.Warn("author collections", zap.Error(err))
	}
	printJSON(a.out, view)
	return nil
}

// runCheckout drives the flow the way the checkout screen does, waiting for
// any scheduled navigation before returning.
func (a *app) runCheckout(ctx context.Context, ref, email string) error {
	flow := a.checkout()
	defer flow.Reset()

	if err := flow.FetchItem(ctx, ref); err != nil {
		st := flow.State()
		fmt.Fprintln(a.out, st.Message)
		if errors.Is(err, errs.ErrUnavailable) {
			a.waitNavigation(ctx, a.cfg.SoldRedirectDelay)
		}
		return err
	}
	st := flow.State()
	printJSON(a.out, st.Item)

	if email == "" && !a.sess.IsAuthenticated() {
		email = st.Email
	}
	if err := flow.HandlePayment(ctx, email); err != nil {
		fmt.Fprintln(a.out, flow.State().Message)
		return err
	}
	if !a.cfg.InPlaceNavigation {
		a.waitNavigation(ctx, a.cfg.InventoryRedirectDelay)
	}
	return nil
}

func (a *app) waitNavigation(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d + time.Second)
	defer t.Stop()
	select {
	case <-a.nav.done:
	case <-t.C:
	case <-ctx.Done():
	}
}

// serveParent runs the hosting side of the bridge and prints every link it claims.
func (a *app) serveParent(ctx context.Context, addr string) error {
	srv := bridge.NewServer(a.cfg.AllowedOrigins, func(m bridge.Message) bool {
		switch m.Type {
		case bridge.TypeRouteChange:
			fmt.Fprintf(a.out, "child route: %s\n", m.URL)
		case bridge.TypePaymentLink:
			fmt.Fprintf(a.out, "payment link: %s\n", m.Link)
			return true
		}
		return false
	}, a.log)

	r := chi.NewRouter()
	r.Handle("/bridge", srv)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	hs := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("parent bridge listening", zap.String("addr", addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func parseSocial(raw string) ([]model.SocialLink, error) {
	var out []model.SocialLink
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		platform, link, ok := strings.Cut(p, "=")
		if !ok || platform == "" || link == "" {
			return nil, fmt.Errorf("%w: bad -social entry %q", errUsage, p)
		}
		out = append(out, model.SocialLink{Platform: platform, URL: link})
	}
	return out, nil
}

// Command mkt is a terminal shell over the marketplace client core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `mkt CLI
Usage:
  mkt [-api URL] [-store file|memory|postgres] [-debug] <cmd> [args]

Commands:
  version
  register            -email <email> -password <password>
  login               -email <email> -password <password>
  logout
  whoami
  collections
  tokens              -collection <id>
  item                -id <token id>
  all-tokens
  author              -id <author id> | -token <token id>
  profile-tokens      -collection <id>
  profile-collections -partner <id>
  sales               -partner <id>
  purchases           -partner <id>
  update-profile      [-bio s] [-first s] [-last s] [-social platform=url,...]
  checkout            -id <token id | enc:payload> [-email <email>]
  serve-parent        [-addr :8090]                   (parent-window endpoint)
  migrate                                             (postgres store only)
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newLogger(debug bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		l, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// main loads configuration, wires the client core and dispatches a subcommand.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	apiURL := flag.String("api", cfg.APIBaseURL, "backend base URL")
	store := flag.String("store", cfg.Store, "session store: file, memory or postgres")
	debug := flag.Bool("debug", cfg.Debug, "verbose logging")
	timeout := flag.Duration("timeout", time.Minute, "overall command timeout")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cfg.APIBaseURL, cfg.Store, cfg.Debug = *apiURL, *store, *debug
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	log := newLogger(cfg.Debug)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("mkt %s (%s)\n", version, buildDate)
		return
	}
	if cmd != "serve-parent" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, log, os.Stdout)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	if err := run(ctx, a, cmd, args); err != nil {
		a.Close()
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			usage()
		}
		fail(err)
	}
}

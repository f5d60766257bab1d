package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/mmcdole/rolodex/internal/adapter"
	"github.com/mmcdole/rolodex/internal/backend"
	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/collection"
	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/realtime"
	"github.com/mmcdole/rolodex/internal/selection"
	"github.com/mmcdole/rolodex/internal/status"
	"github.com/mmcdole/rolodex/internal/store"
	"github.com/mmcdole/rolodex/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

// observerBuffer bounds the engine → UI message queue
const observerBuffer = 256

type options struct {
	headless   bool
	from       string
	to         string
	remove     bool
	onConflict string
	query      string
	history    int
	clearCache bool
}

func main() {
	var (
		showVersion bool
		opts        options
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.BoolVar(&opts.headless, "headless", false, "run one bulk operation without the TUI")
	flag.StringVar(&opts.from, "from", "", "source collection (name or id)")
	flag.StringVar(&opts.to, "to", "", "target collection (name or id)")
	flag.BoolVar(&opts.remove, "remove", false, "remove instead of add")
	flag.StringVar(&opts.onConflict, "on-conflict", "skip", "conflict answer: move, skip or cancel")
	flag.StringVar(&opts.query, "query", "", "only companies in -from matching this search")
	flag.IntVar(&opts.history, "history", 0, "print the last N bulk operations and exit")
	flag.BoolVar(&opts.clearCache, "clear-cache", false, "delete the local cache and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("rolodex %s\n", Version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wired engine shared by both front-ends
type app struct {
	cfg         *adapter.Config
	logger      *slog.Logger
	cache       *store.CacheStore
	client      *backend.Client
	channel     *realtime.Channel
	collections *collection.Service
}

func run(opts options) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.clearCache {
		return adapter.ClearCache(cfg.Cache.Dir)
	}

	// Setup logger
	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closer = adapter.NullLogger(), io.NopCloser(nil)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting rolodex", "version", Version, "server", cfg.Server.URL)

	cache, err := store.NewCacheStore(cfg.Cache.Dir, cfg.Server.URL)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cache.Close()

	if opts.history > 0 {
		return printHistory(os.Stdout, cache, opts.history)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		client: backend.NewClient(cfg.Server.URL, cfg.Server.RequestsPerSecond, logger),
		channel: realtime.NewChannel(
			realtime.NewWebSocketDialer(cfg.Server.WSURL),
			realtime.Options{
				ReconnectInterval: cfg.Realtime.ReconnectInterval,
				MaxAttempts:       cfg.Realtime.MaxAttempts,
			},
			logger,
		),
	}
	defer a.channel.Close()

	a.collections = collection.NewService(a.client, cache, collection.RoleNames{
		Liked:   cfg.Collections.Liked,
		Ignored: cfg.Collections.Ignored,
		Default: cfg.Collections.Default,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.collections.LoadRoles(ctx); err != nil {
		return fmt.Errorf("failed to load collections: %w", err)
	}

	if opts.headless || !term.IsTerminal(int(os.Stdout.Fd())) {
		return a.runHeadless(ctx, opts, os.Stdout)
	}
	return a.runTUI()
}

func (a *app) runTUI() error {
	observer := tui.NewChannelObserver(observerBuffer)
	sel := selection.NewStore(observer)

	coord := bulk.NewCoordinator(bulk.Deps{
		Backend:   a.client,
		Channel:   a.channel,
		Selection: sel,
		Roles:     a.collections.Roles(),
		Prompter:  observer,
		Journal:   a.cache,
		Observer:  observer,
		Logger:    a.logger,
	})

	model := tui.NewModel(tui.Deps{
		Collections:  a.collections,
		Scopes:       a.client,
		Coordinator:  coord,
		Status:       status.NewEngine(a.client, a.collections.Roles(), observer, a.logger),
		Selection:    sel,
		Events:       observer.Messages(),
		PageSize:     a.cfg.UI.PageSize,
		ErrorPreview: a.cfg.UI.ErrorPreview,
		Logger:       a.logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())

	a.logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		a.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}

// runHeadless selects everything in the -from scope and runs one bulk
// operation against -to
func (a *app) runHeadless(ctx context.Context, opts options, out io.Writer) error {
	action, err := conflict.ParseAction(opts.onConflict)
	if err != nil {
		return err
	}

	from, err := a.collections.Resolve(ctx, opts.from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	target := from
	if opts.to != "" {
		if target, err = a.collections.Resolve(ctx, opts.to); err != nil {
			return fmt.Errorf("-to: %w", err)
		}
	} else if !opts.remove {
		return fmt.Errorf("%w: -to is required unless -remove is given", domain.ErrValidation)
	}

	scope := domain.Scope{CollectionID: from.ID, Query: opts.query}
	ids, err := a.client.AllIDsInScope(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}

	sel := selection.NewStore(nil)
	sel.ResetScope(len(ids))
	sel.SelectAll(ids)

	req := bulk.Request{Kind: domain.KindAdd, Collection: target.ID, IDs: sel.IDs(), Source: from.ID}
	verb := "Adding"
	if opts.remove {
		req.Kind, req.Source = domain.KindRemove, domain.CollectionID{}
		verb = "Removing"
	}
	if target.ID == from.ID && req.Kind == domain.KindAdd {
		return fmt.Errorf("%w: -from and -to are the same collection", domain.ErrValidation)
	}

	fmt.Fprintf(out, "%s %d companies (%s → %s)\n", verb, len(req.IDs), from.Name, target.Name)

	printer := newProgressPrinter(out)
	coord := bulk.NewCoordinator(bulk.Deps{
		Backend:   a.client,
		Channel:   a.channel,
		Selection: sel,
		Roles:     a.collections.Roles(),
		Prompter:  answerWith(out, action),
		Journal:   a.cache,
		Observer:  printer,
		Logger:    a.logger,
	})

	result, err := coord.Run(ctx, req)
	if err != nil {
		return err
	}
	if result.Outcome == domain.OutcomeDetached {
		return fmt.Errorf("interrupted; operation %s continues on the server", result.Operation.ID)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cookieproxy/internal/browsercontext"
	"github.com/roach88/cookieproxy/internal/config"
	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiemanager"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
)

const cookiesFile = browsercontext.CookiesFilename

// proxy is the client-thread view of the store both proxy variants offer.
type proxy interface {
	cookiestore.Store
	Close()
}

// session is one command's worth of browser context, client thread,
// proxy and cookie manager.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	browser *browsercontext.Context
	client  *thread.Thread

	// Client thread only.
	proxy   proxy
	manager *cookiemanager.Manager
	relay   *relay
}

// openSession loads the config, starts the browser context and waits for
// its store. Callers must Close the session.
func openSession(ctx context.Context, opts *RootOptions, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	mode, err := browsercontext.ParseSessionCookieMode(cfg.Database.SessionCookies)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := newLogger(cfg.Log, opts.Verbose, stderr)
	s := &session{cfg: cfg, logger: logger, relay: newRelay()}

	s.browser = browsercontext.New(ctx, browsercontext.Params{
		Path:              cfg.Database.Path,
		Driver:            cfg.Database.Driver,
		SessionCookieMode: mode,
		StoreThreadName:   cfg.Threads.Store,
	}, browsercontext.WithLogger(logger))
	if err := s.browser.Wait(ctx); err != nil {
		s.browser.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open cookie database", err)
	}

	s.client = thread.New(cfg.Threads.Client, thread.WithLogger(logger))
	s.client.Start(ctx)

	var p proxy
	if cfg.Proxy.Variant == "guarded" {
		ui, err := s.browser.UICookieStore(ctx, s.client)
		if err != nil {
			s.client.Stop()
			s.browser.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open cookie database", err)
		}
		p = ui
	} else {
		p = s.browser.CookieStore(s.client)
	}

	err = s.client.PostTaskAndWait(ctx, func() {
		s.proxy = p
		s.manager = cookiemanager.New(s.client, p, s.relay, cookiemanager.WithLogger(logger))
	})
	if err != nil {
		s.client.Stop()
		s.browser.Close()
		return nil, err
	}

	logger.Debug("session open",
		"db", cfg.Database.Path, "driver", cfg.Database.Driver, "variant", cfg.Proxy.Variant)
	return s, nil
}

// Close tears down the proxy and manager, then the client thread, then
// the browser context, which commits pending writes.
func (s *session) Close() {
	s.client.PostTask(func() {
		s.manager.Close()
		s.proxy.Close()
	})
	s.client.Stop()
	s.browser.Close()
}

// newLogger builds the slog logger for a session. --verbose forces debug.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// await runs issue on the client thread and blocks until it calls done.
func await[T any](ctx context.Context, s *session, issue func(done func(T))) (T, error) {
	var zero T
	ch := make(chan T, 1)
	posted := s.client.PostTask(func() {
		issue(func(v T) { ch <- v })
	})
	if !posted {
		return zero, fmt.Errorf("client thread: %w", thread.ErrStopped)
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// relay routes Manager results to the command waiting on each request ID.
// Client thread only.
type relay struct {
	set     map[int]func([]cookie.Details)
	got     map[int]func(cookie.List)
	deleted map[int]func(int)
}

func newRelay() *relay {
	return &relay{
		set:     make(map[int]func([]cookie.Details)),
		got:     make(map[int]func(cookie.List)),
		deleted: make(map[int]func(int)),
	}
}

func (r *relay) CookiesSet(id int, failed []cookie.Details) {
	if fn, ok := r.set[id]; ok {
		delete(r.set, id)
		fn(failed)
	}
}

func (r *relay) GotCookies(id int, list cookie.List) {
	if fn, ok := r.got[id]; ok {
		delete(r.got, id)
		fn(list)
	}
}

func (r *relay) CookiesDeleted(id int, n int) {
	if fn, ok := r.deleted[id]; ok {
		delete(r.deleted, id)
		fn(n)
	}
}

// commandContext returns cmd's context, or Background when run outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Package app wires the mirror store, upstream adapters, notification
// channels and HTTP surface into one explicitly started and stopped process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/ai"
	"github.com/wesm/collabhub/internal/api"
	"github.com/wesm/collabhub/internal/auth"
	"github.com/wesm/collabhub/internal/db"
	"github.com/wesm/collabhub/internal/notify"
	"github.com/wesm/collabhub/internal/server"
	"github.com/wesm/collabhub/internal/sync"
	"github.com/wesm/collabhub/internal/webhook"
)

// App owns every long-lived component
type App struct {
	cfg        *config.Config
	store      *db.DB
	hub        *notify.Hub
	dispatcher *notify.Dispatcher
	http       *http.Server
	listener   net.Listener
	done       chan error
}

// New builds the application from cfg and prepares the store schema
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, err
	}

	var mailer notify.Mailer
	if cfg.SMTP.Host != "" {
		m, err := notify.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			store.Close()
			return nil, err
		}
		mailer = m
	} else {
		log.Printf("Warning: smtp.host not set, email notifications disabled")
	}

	clients := api.NewFactory(cfg.GitHub)
	annotator := ai.NewClient(cfg.AI)
	if cfg.AI.APIKey == "" {
		log.Printf("Warning: ai.api_key not set, AI analysis disabled")
	}

	// The hub checks room joins against the syncer, which is built after it
	var syncer *sync.Syncer
	hub := notify.NewHub(cfg.HTTP.FrontendURL, func(ctx context.Context, userID, repoID string) bool {
		user, err := store.GetUser(ctx, userID)
		if err != nil {
			return false
		}
		_, err = syncer.AuthorizeRepository(ctx, user, repoID)
		return err == nil
	})
	dispatcher := notify.NewDispatcher(store, hub, mailer)

	syncer = sync.New(store, clients, annotator, dispatcher)
	syncer.SetWorkers(cfg.Sync.Workers)
	syncer.SetMaxDiffBytes(cfg.AI.MaxDiffBytes)

	sessions := auth.NewSessions(cfg.Session.JWTSecret, cfg.SessionTTL())
	srv := server.New(server.Deps{
		Store:       store,
		Syncer:      syncer,
		Annotator:   annotator,
		Auth:        auth.NewAuthenticator(cfg.GitHub, clients, store, sessions),
		Sessions:    sessions,
		Webhooks:    webhook.NewHandler(cfg.Webhook, syncer, store, dispatcher),
		Realtime:    hub,
		FrontendURL: cfg.HTTP.FrontendURL,
	})

	return &App{
		cfg:        cfg,
		store:      store,
		hub:        hub,
		dispatcher: dispatcher,
		http: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		done: make(chan error, 1),
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (*db.DB, error) {
	switch cfg.Type {
	case config.StoragePostgres:
		return db.NewPostgres(ctx, cfg.Postgres)
	case config.StorageSQLite:
		return db.New(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Addr returns the address the server listens on once started
func (a *App) Addr() string {
	if a.listener == nil {
		return a.cfg.HTTP.Addr
	}
	return a.listener.Addr().String()
}

// Start binds the listen address and serves in the background
func (a *App) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.listener = ln

	go func() {
		log.Printf("HTTP server listening on %s (storage=%s)", ln.Addr(), a.cfg.Storage.Type)
		err := a.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		a.done <- err
	}()
	return nil
}

// Done reports a server failure, or nil after Stop
func (a *App) Done() <-chan error {
	return a.done
}

// Stop drains HTTP requests, disconnects real-time clients, waits for
// in-flight emails and closes the store.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.hub.Close()
	a.dispatcher.Wait()
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Package app wires the client components together from the loaded
// configuration. Commands open one App, use it, and close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gregriff/parley/configs"
	"github.com/gregriff/parley/internal/models"
	"github.com/gregriff/parley/internal/querycache"
	"github.com/gregriff/parley/internal/realtime"
	"github.com/gregriff/parley/internal/services/api"
	"github.com/gregriff/parley/internal/session"
)

// ErrLoggedOut is returned by commands that need a session when there is none.
var ErrLoggedOut = errors.New("not logged in, run `parley login` first")

// App holds the components shared by every command.
type App struct {
	Settings configs.Settings
	Store    *session.Store
	API      *api.Client

	logger *slog.Logger
	kv     io.Closer
}

// Open builds the components and rehydrates any persisted session.
func Open(settings configs.Settings, logger *slog.Logger) (*App, error) {
	kv, closer, err := configs.OpenSessionKV(settings)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return New(settings, kv, closer, logger)
}

// New builds an App on an already opened session backend.
func New(settings configs.Settings, kv session.KV, closer io.Closer, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store := session.NewStore(kv, session.WithLogger(logger))
	if _, err := store.Rehydrate(); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	client := api.NewClient(api.Config{
		BaseURL: settings.APIOrigin,
		Tokens:  store,
		Timeout: settings.HTTPTimeout,
		Cache:   querycache.New(settings.CacheTTL),
		Logger:  logger,
	})

	return &App{
		Settings: settings,
		Store:    store,
		API:      client,
		logger:   logger,
		kv:       closer,
	}, nil
}

// Close releases the session backend.
func (a *App) Close() error {
	if a.kv == nil {
		return nil
	}
	return a.kv.Close()
}

// RequireSession returns the signed-in session or ErrLoggedOut.
func (a *App) RequireSession() (session.Session, error) {
	s, ok := a.Store.Current()
	if !ok {
		return session.Session{}, ErrLoggedOut
	}
	return s, nil
}

// Login authenticates and persists the session.
func (a *App) Login(ctx context.Context, email, password string) (models.User, error) {
	res, err := a.API.Login(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}
	return a.begin(res)
}

// Register creates an account and persists its session.
func (a *App) Register(ctx context.Context, name, email, password string) (models.User, error) {
	res, err := a.API.Register(ctx, name, email, password)
	if err != nil {
		return models.User{}, err
	}
	return a.begin(res)
}

func (a *App) begin(res api.AuthResult) (models.User, error) {
	if err := a.Store.Login(res.User, res.AccessToken); err != nil {
		return models.User{}, fmt.Errorf("saving session: %w", err)
	}
	a.API.ClearCache()
	a.logger.Info("logged in", "user", res.User.ID)
	return res.User, nil
}

// Logout forgets the session and every cached query.
func (a *App) Logout() error {
	a.API.ClearCache()
	return a.Store.Logout()
}

// Check maps a rejected session onto a logout, so the next command asks
// for a fresh login instead of replaying a dead token.
func (a *App) Check(err error) error {
	if err == nil || !api.IsUnauthorized(err) {
		return err
	}
	if logoutErr := a.Logout(); logoutErr != nil {
		a.logger.Warn("clearing expired session", "error", logoutErr)
	}
	return fmt.Errorf("session expired, please log in again: %w", err)
}

// NewChannel creates the realtime channel for this process.
func (a *App) NewChannel() *realtime.Channel {
	return realtime.New(realtime.Config{
		APIOrigin:    a.Settings.APIOrigin,
		EventsPath:   a.Settings.EventsPath,
		Reconnect:    a.Settings.Reconnect,
		ReconnectMin: a.Settings.ReconnectMin,
		ReconnectMax: a.Settings.ReconnectMax,
	}, realtime.WithLogger(a.logger))
}

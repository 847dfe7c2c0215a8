package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"xtplay/internal/catalog"
	"xtplay/internal/config"
	"xtplay/internal/failure"
	"xtplay/internal/fetch"
	"xtplay/internal/httputil"
	"xtplay/internal/media"
	"xtplay/internal/playback"
	"xtplay/internal/player"
	"xtplay/internal/session"
	"xtplay/internal/store"
	"xtplay/internal/ui"
	"xtplay/internal/xtream"
)

var errAuthRejected = failure.New(failure.AuthRejected, "login rejected: account inactive or wrong credentials")

// app bundles what every command needs: the store, the active session and
// the services built on it.
type app struct {
	store    *store.Store
	sess     *session.Session
	account  media.Account
	client   *http.Client
	resolver *fetch.Resolver
	catalog  *catalog.Service
}

// openApp opens the store and restores the active session. Credentials in
// the config file take precedence over the stored active account; with
// neither the session runs in demo mode.
func openApp() (*app, error) {
	path, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	a := &app{store: st, client: httputil.NewClient(cfg.Transport.Timeout.Duration + 5*time.Second)}
	a.resolver = newResolver(a.client)

	acct, err := activeAccount(st)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.account = acct

	if acct.PortalURL == "" {
		a.sess = session.Demo()
	} else {
		a.sess, err = session.New(acct.PortalURL, acct.Username, acct.Password)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	a.catalog = catalog.New(a.sess, a.resolver, catalog.Options{
		LenientAuth: cfg.Catalog.LenientAuth,
		AuthTimeout: cfg.Transport.AuthTimeout.Duration,
	})
	return a, nil
}

func activeAccount(st *store.Store) (media.Account, error) {
	if cfg.Portal != "" {
		return media.Account{PortalURL: cfg.Portal, Username: cfg.Username, Password: cfg.Password}, nil
	}
	acct, err := st.Active(context.Background())
	if errors.Is(err, store.ErrNotFound) {
		return media.Account{}, nil
	}
	return acct, err
}

func newResolver(client *http.Client) *fetch.Resolver {
	return fetch.New(client, fetch.Options{
		RelayURL:       cfg.Transport.RelayURL,
		Native:         cfg.Transport.Native,
		PublicRelays:   cfg.Transport.PublicRelays,
		PublicRelayRPS: cfg.Transport.PublicRelayRPS,
		Timeout:        cfg.Transport.Timeout.Duration,
		UserAgent:      cfg.Transport.UserAgent,
	})
}

func (a *app) Close() error {
	return a.store.Close()
}

// user scopes favorites, recents and progress to the current login.
func (a *app) user() store.User {
	c := a.sess.Credentials()
	return store.User{Username: c.Username, Portal: c.BaseURL}
}

// login authenticates the session, warning about demo mode.
func (a *app) login(ctx context.Context) error {
	if a.sess.IsDemo() {
		fmt.Fprintln(os.Stderr, ui.Hint("Demo mode: run `xtplay login` to use your own portal."))
	}
	ok, err := a.catalog.Authenticate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errAuthRejected
	}
	if !a.sess.IsDemo() && cfg.Portal == "" {
		if err := a.store.TouchAccount(ctx, store.UserOf(a.account)); err != nil {
			debugf("touching account: %v", err)
		}
	}
	return nil
}

// engine builds a playback engine for the configured player.
func (a *app) engine(name string) *playback.Engine {
	var prober playback.Prober
	if !a.sess.IsDemo() {
		prober = &playback.HTTPProber{
			Client:    a.client,
			URL:       xtream.ProbeURL(a.sess.Credentials().BaseURL),
			UserAgent: cfg.Transport.UserAgent,
		}
	}
	factory := player.New(name, player.Options{Client: a.client, UserAgent: cfg.Transport.UserAgent})
	return playback.NewEngine(factory, prober, playback.Options{
		LiveTimeout:   cfg.Playback.LiveTimeout.Duration,
		VODTimeout:    cfg.Playback.VODTimeout.Duration,
		ProbeTimeout:  cfg.Playback.ProbeTimeout.Duration,
		SecureContext: cfg.Playback.SecureContext,
		OnTransition: func(t playback.Transition) {
			if !flagJSON {
				fmt.Fprintln(os.Stderr, ui.Transition(t))
			}
		},
	})
}

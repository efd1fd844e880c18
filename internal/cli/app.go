// Package cli implements the panel subcommands: login, logout and the
// interactive control loop.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/config"
	"github.com/luchaneitor/tecnoacceso-web/internal/device"
	"github.com/luchaneitor/tecnoacceso-web/internal/gateway"
	"github.com/luchaneitor/tecnoacceso-web/internal/ledger"
	"github.com/luchaneitor/tecnoacceso-web/internal/marker"
	"github.com/luchaneitor/tecnoacceso-web/internal/notify"
	"github.com/luchaneitor/tecnoacceso-web/internal/operator"
	"github.com/luchaneitor/tecnoacceso-web/internal/syncengine"
)

// App bundles the client runtime of one panel process.
type App struct {
	Cfg      *config.Config
	Session  operator.Context
	Gateway  *gateway.HTTPClient
	Markers  *marker.Store
	Ledger   *ledger.Ledger
	Engine   *syncengine.Engine
	Device   *device.Session
	Notifier notify.Notifier
}

// NewApp wires the runtime from stored credentials. It fails when no operator
// is logged in.
func NewApp(cfg *config.Config) (*App, error) {
	session, ok, err := operator.Load(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not logged in (run: panel login)")
	}

	gw := gateway.NewHTTPClient(cfg.ServerURL, session.Token)

	// Origin identifies this process in marker stamps, so this tab can tell
	// its own wake-ups from foreign ones.
	markers, err := marker.NewStore(filepath.Join(cfg.Home, "markers"), uuid.NewString())
	if err != nil {
		return nil, err
	}

	lgr, err := ledger.New(ledger.Config{
		Dir:     filepath.Join(cfg.Home, "ledger"),
		Gateway: gw,
		Markers: markers,
	})
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.PushoverToken != "" && cfg.PushoverUser != "" {
		pushover, err := notify.NewPushover(notify.PushoverConfig{
			Token:   cfg.PushoverToken,
			UserKey: cfg.PushoverUser,
		})
		if err != nil {
			return nil, err
		}
		notifier = notify.Multi{notify.LogNotifier{}, pushover}
	}

	engine := syncengine.New(syncengine.Config{
		Session:      session,
		Ledger:       lgr,
		Gateway:      gw,
		Markers:      markers,
		Notifier:     notifier,
		PollInterval: cfg.PollInterval,
	})

	var dev *device.Session
	if cfg.BridgeURL != "" {
		dev = device.New(device.Config{
			Transport:      device.NewWSTransport(cfg.BridgeURL),
			FilterName:     cfg.DeviceName,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	}

	return &App{
		Cfg:      cfg,
		Session:  session,
		Gateway:  gw,
		Markers:  markers,
		Ledger:   lgr,
		Engine:   engine,
		Device:   dev,
		Notifier: notifier,
	}, nil
}

// Close tears the runtime down: device first (forced disconnect), then the
// sync engine, then a flush of pending remote appends.
func (a *App) Close() {
	if a.Device != nil {
		a.Device.Stop()
	}
	a.Engine.Stop()
	a.Ledger.Flush()
}

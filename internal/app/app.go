// Package app arma el servicio completo a partir de la configuración:
// store de tickets, builder, firmante, cliente del WSAA, broker y router HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/wsaa/internal/broker"
	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/dropDatabas3/wsaa/internal/config"
	healthctrl "github.com/dropDatabas3/wsaa/internal/http/controllers/health"
	ticketctrl "github.com/dropDatabas3/wsaa/internal/http/controllers/ticket"
	mw "github.com/dropDatabas3/wsaa/internal/http/middlewares"
	"github.com/dropDatabas3/wsaa/internal/http/router"
	healthsvc "github.com/dropDatabas3/wsaa/internal/http/services/health"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/ticketstore"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/dropDatabas3/wsaa/internal/wsaa/client"
	"github.com/dropDatabas3/wsaa/internal/wsaa/request"
	"github.com/dropDatabas3/wsaa/internal/wsaa/signer"
)

// Options permite inyectar piezas en tests. Todo es opcional.
type Options struct {
	Clock      clock.Clock
	HTTPClient *http.Client
	// Registry recibe los collectors; nil crea uno nuevo.
	Registry *prometheus.Registry
}

// App es el servicio cableado.
type App struct {
	Handler http.Handler
	Broker  *broker.Broker
	Store   ticketstore.Store
	Signer  *signer.Signer
	Client  *client.Client

	cfg *config.Config
}

// New cablea todas las dependencias. Si algo falla, libera lo ya abierto.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.From(ctx).With(logger.Layer("app"), logger.Op("New"))

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	layout, err := request.ParseLayout(cfg.WSAA.TimeLayout)
	if err != nil {
		return nil, fmt.Errorf("app: wsaa.time_layout %q: %w", cfg.WSAA.TimeLayout, err)
	}
	loc, err := time.LoadLocation(cfg.WSAA.Location)
	if err != nil {
		return nil, fmt.Errorf("app: wsaa.location %q: %w", cfg.WSAA.Location, err)
	}

	// 1. Token store
	store, err := ticketstore.New(ctx, storeConfig(cfg, clk))
	if err != nil {
		return nil, fmt.Errorf("app: token store: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = store.Close()
		}
	}()

	// 2. Pipeline: builder -> signer -> autoridad
	builder := request.NewBuilder(
		request.WithClock(clk),
		request.WithLayout(layout),
		request.WithLocation(loc),
		request.WithBackdate(cfg.WSAA.Backdate),
	)
	sig := signer.New(wsaa.Credentials{
		KeystorePath:     cfg.WSAA.Keystore.Path,
		KeystorePassword: cfg.WSAA.Keystore.Password,
		SignerAlias:      cfg.WSAA.Keystore.Alias,
	})
	cl, err := client.New(client.Config{
		Endpoint:   cfg.WSAA.Endpoint,
		Timeout:    cfg.WSAA.Timeout,
		ProxyURL:   cfg.WSAA.ProxyURL,
		CAFile:     cfg.WSAA.CAFile,
		Location:   loc,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("app: wsaa client: %w", err)
	}

	// 3. Broker
	b, err := broker.New(broker.Config{
		ValidityWindow: cfg.WSAA.ValidityWindow,
		RenewBefore:    cfg.WSAA.RenewBefore,
		CacheTTL:       cfg.WSAA.CacheTTL,
		RenewTimeout:   cfg.WSAA.RenewTimeout,
	}, broker.Deps{
		Store:     store,
		Builder:   builder,
		Signer:    sig,
		Authority: cl,
		Clock:     clk,
	})
	if err != nil {
		return nil, fmt.Errorf("app: broker: %w", err)
	}

	// 4. HTTP
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metricsHandler, err := mw.RegisterMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	health := healthsvc.NewHealthService(healthsvc.Deps{
		StoreCheck:  store.Ping,
		StoreDriver: cfg.Store.Driver,
		Keystore:    sig,
		Service:     cfg.WSAA.Service,
		Version:     cfg.App.Version,
		Clock:       clk,
	})
	handler := router.New(router.Deps{
		Ticket:  ticketctrl.NewTicketController(b, cfg.WSAA.Service),
		Health:  healthctrl.NewHealthController(health),
		Metrics: metricsHandler,
	})

	log.Info("wsaa service wired",
		logger.ServiceID(cfg.WSAA.Service),
		logger.Endpoint(cl.Endpoint()),
		logger.Driver(cfg.Store.Driver),
		logger.Alias(cfg.WSAA.Keystore.Alias),
	)

	ok = true
	return &App{
		Handler: handler,
		Broker:  b,
		Store:   store,
		Signer:  sig,
		Client:  cl,
		cfg:     cfg,
	}, nil
}

// Server devuelve un http.Server con los timeouts configurados.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}
}

// Warmup pide un ticket al arrancar. Un error no es fatal: el primer
// request lo reintentará.
func (a *App) Warmup(ctx context.Context) error {
	_, err := a.Broker.Authenticate(ctx, a.cfg.WSAA.Service)
	return err
}

// Close libera el store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	if err := a.Store.Close(); err != nil && !errors.Is(err, ticketstore.ErrClosed) {
		return err
	}
	return nil
}

func storeConfig(cfg *config.Config, clk clock.Clock) ticketstore.Config {
	return ticketstore.Config{
		Driver: cfg.Store.Driver,
		Redis: ticketstore.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		},
		Bolt: ticketstore.BoltConfig{Path: cfg.Store.Bolt.Path},
		Postgres: ticketstore.PostgresConfig{
			DSN:      cfg.Store.Postgres.DSN,
			MaxConns: int32(cfg.Store.Postgres.MaxConns),
		},
		Clock: clk,
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // America/Argentina/Buenos_Aires aun sin zoneinfo en la imagen

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/wsaa/internal/app"
	"github.com/dropDatabas3/wsaa/internal/config"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/util"
)

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func printConfigSummary(c *config.Config) {
	fmt.Printf(`env=%s log=%s addr=%s
wsaa: service=%s endpoint=%s window=%s timeout=%s renew_before=%s cache_ttl=%s layout=%s location=%s
keystore: path=%s alias=%s password=%s
store: driver=%s redis=%s bolt=%s postgres=%t
`,
		c.App.Env, c.Log.Level, c.Server.Addr,
		c.WSAA.Service, c.WSAA.Endpoint, c.WSAA.ValidityWindow, c.WSAA.Timeout, c.WSAA.RenewBefore, c.WSAA.CacheTTL, c.WSAA.TimeLayout, c.WSAA.Location,
		c.WSAA.Keystore.Path, c.WSAA.Keystore.Alias, util.MaskSecret(c.WSAA.Keystore.Password),
		c.Store.Driver, c.Store.Redis.Addr, c.Store.Bolt.Path, c.Store.Postgres.DSN != "",
	)
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
		flagWarmup     = flag.Bool("warmup", true, "pide un ticket al arrancar")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" && fileExists("configs/config.yaml") {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "wsaa",
		Version:     cfg.App.Version,
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		lg.Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			lg.Warn("close store", logger.Err(err))
		}
	}()

	if *flagWarmup {
		wctx, cancel := context.WithTimeout(ctx, cfg.WSAA.RenewTimeout)
		if err := a.Warmup(wctx); err != nil {
			lg.Warn("warmup failed, first request will retry", logger.ServiceID(cfg.WSAA.Service), logger.Err(err))
		}
		cancel()
	}

	srv := a.Server()
	errc := make(chan error, 1)
	go func() {
		lg.Info("service up", logger.String("addr", cfg.Server.Addr), logger.ServiceID(cfg.WSAA.Service), logger.Time("time", time.Now()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			lg.Error("http server failed", logger.Err(err))
		}
	case <-ctx.Done():
		lg.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warn("graceful shutdown", logger.Err(err))
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dropDatabas3/wsaa/internal/config"
	migrations "github.com/dropDatabas3/wsaa/migrations/postgres"
)

// migrate aplica o revierte el esquema del token store postgres.
// El servicio aplica las "up" al arrancar; esto sirve para preparar la base
// con un usuario con más privilegios o para limpiarla.
//
//	migrate [-config cfg.yaml] [-dsn postgres://...] up|down [steps]
func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (store.postgres.dsn)")
		dsnFlag    = flag.String("dsn", "", "Postgres DSN (pisa config y $STORE_POSTGRES_DSN)")
	)
	flag.Parse()
	_ = godotenv.Load()

	// Positional args: [action] [steps]
	action := "up"
	steps := 0
	args := flag.Args()
	if len(args) >= 1 && args[0] != "" {
		action = strings.ToLower(args[0])
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			steps = n
		}
	}

	dsn, err := resolveDSN(*dsnFlag, *configPath)
	if err != nil {
		log.Fatalf("dsn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	var files []string
	switch action {
	case "up":
		files, err = migrations.Up()
	case "down":
		files, err = migrations.Down()
	default:
		log.Fatalf("unknown action %q (use up|down)", action)
	}
	if err != nil {
		log.Fatalf("list %s: %v", action, err)
	}
	if len(files) == 0 {
		log.Printf("No %s migrations found. Nothing to do.", action)
		return
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	log.Printf("Applying %d %s migration(s)...", len(files), action)
	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		log.Printf("  %s (%s)", f, time.Since(start).Round(time.Millisecond))
	}
	log.Printf("%s migrations completed.", strings.ToUpper(action[:1])+action[1:])
}

func resolveDSN(flagDSN, configPath string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	if v := os.Getenv("STORE_POSTGRES_DSN"); v != "" {
		return v, nil
	}
	if configPath == "" {
		return "", fmt.Errorf("use -dsn, $STORE_POSTGRES_DSN or -config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Store.Postgres.DSN == "" {
		return "", fmt.Errorf("%s: store.postgres.dsn is empty", configPath)
	}
	return cfg.Store.Postgres.DSN, nil
}

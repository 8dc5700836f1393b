package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"realmsync.io/internal/audit"
	"realmsync.io/internal/auth"
	"realmsync.io/internal/game"
	"realmsync.io/internal/store/backend"
	"realmsync.io/internal/transport/admin"
	"realmsync.io/internal/transport/ws"
	"realmsync.io/internal/tuning"
)

// serverEnv carries deployment overrides; flags win when both are given.
type serverEnv struct {
	Addr           string `env:"REALM_ADDR"`
	DataDir        string `env:"REALM_DATA_DIR"`
	Store          string `env:"REALM_STORE"`
	RedisURL       string `env:"REALM_REDIS_URL"`
	RedisKeyPrefix string `env:"REALM_REDIS_PREFIX"`
	SQLitePath     string `env:"REALM_SQLITE_PATH"`
	EnableAdmin    bool   `env:"REALM_ENABLE_ADMIN_HTTP" envDefault:"true"`
	AllowRemote    bool   `env:"REALM_ALLOW_REMOTE_ADMIN"`
	EnablePprof    bool   `env:"REALM_ENABLE_PPROF_HTTP"`
}

func main() {
	var senv serverEnv
	if err := env.Parse(&senv); err != nil {
		log.Fatalf("parse env: %v", err)
	}

	var (
		addr       = flag.String("addr", orDefault(senv.Addr, ":8080"), "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", orDefault(senv.DataDir, "./data"), "runtime data directory (audit logs, sqlite db)")
		storeName  = flag.String("store", orDefault(senv.Store, "memory"), "persistence backend: memory, redis or sqlite")
		redisURL   = flag.String("redis_url", senv.RedisURL, "redis url when -store=redis")
		sqlitePath = flag.String("sqlite", senv.SQLitePath, "sqlite path when -store=sqlite (default: <data>/realm.db)")
		noAudit    = flag.Bool("disable_audit", false, "do not write audit logs to the data directory")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	st, err := backend.Open(backend.Config{
		Backend:        *storeName,
		RedisURL:       *redisURL,
		RedisKeyPrefix: senv.RedisKeyPrefix,
		SQLitePath:     *sqlitePath,
		DataDir:        *dataDir,
	})
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	authCfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		logger.Fatalf("auth config: %v", err)
	}
	verifier, err := auth.NewVerifier(authCfg, st)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	var auditLog audit.Logger = audit.Nop{}
	if !*noAudit {
		fl := audit.NewFileLogger(*dataDir)
		defer fl.Close()
		auditLog = fl
	}

	g := game.New(game.Options{
		Tuning:   tune,
		Store:    st,
		Verifier: verifier,
		Audit:    auditLog,
		Logger:   logger,
	})

	wsSrv := ws.NewServer(g.Registry, g.Router, ws.Config{}, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	handler := admin.NewRouter(g, admin.Config{
		EnableAdmin: senv.EnableAdmin,
		AllowRemote: senv.AllowRemote,
		EnablePprof: senv.EnablePprof,
		WS:          wsSrv.Handler(),
	}, log.New(os.Stdout, "[http] ", log.LstdFlags|log.Lmicroseconds))
	if !senv.EnableAdmin {
		logger.Printf("admin endpoints disabled (REALM_ENABLE_ADMIN_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go g.Run(ctx)

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (store=%s protocol=%s)", *addr, *storeName, tune.ProtocolVersion)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	if err := g.Shutdown(ctx3); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

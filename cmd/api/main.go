package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/config"
	"fieldops.org/internal/directory"
	"fieldops.org/internal/httpapi"
	"fieldops.org/internal/obs"
	"fieldops.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("missing FIELDOPS_AUTH_SECRET")
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("missing FIELDOPS_PG_DSN")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := pg.New(db)

	authSvc, err := auth.NewService(store, cfg.AuthSecret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithRevokedTokenRetention(cfg.RevokedTokenRetention),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	dirSvc, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Auth:               authSvc,
		Directory:          dirSvc,
		Ready:              httpapi.ReadyProbe{DB: db},
		Version:            version,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Background compaction keeps the per-user revoked token sets bounded.
	if cfg.RevokedTokenRetention > 0 {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					n, err := authSvc.CompactRevokedTokens(rootCtx)
					if err != nil {
						log.Printf("compact revoked tokens: %v", err)
						continue
					}
					if n > 0 {
						log.Printf("compacted %d revoked tokens", n)
					}
				}
			}
		}()
	}

	log.Printf("Starting fieldops-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}

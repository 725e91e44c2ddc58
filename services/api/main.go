package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conversa/internal/auth"
	"github.com/conversa/internal/config"
	"github.com/conversa/internal/handler"
	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/push"
	"github.com/conversa/internal/repository"
	"github.com/conversa/internal/startup"
	"github.com/conversa/internal/storage"
	"github.com/conversa/internal/storage/memory"
	"github.com/conversa/internal/ws"
	"github.com/conversa/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory cache (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	userRepo := repository.NewUserRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	reactRepo := repository.NewReactionRepository(pool)
	receiptRepo := repository.NewReceiptRepository(pool)
	pushSubRepo := repository.NewPushSubscriptionRepository(pool)

	// После рестарта никто не подключён: все ONLINE/AWAY в БД — мусор.
	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := userRepo.ResetAllPresence(resetCtx); err != nil {
		logger.Errorf("reset presence: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	var presenceCache storage.PresenceCache
	if *dev {
		presenceCache = memory.New()
		logger.Info("using in-memory presence cache (-dev)")
	} else {
		presenceCache = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
	}
	defer presenceCache.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	pushSender := push.NewSender(pushSubRepo, cfg.PushVAPIDPublicKey, cfg.PushVAPIDPrivateKey, cfg.PushVAPIDSubject)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(msgRepo, convRepo, reactRepo, receiptRepo, userRepo, cfg.MaxWSConnections, presenceCache, pushSender)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	convH := handler.NewConversationHandler(convRepo, userRepo, msgRepo, hub)
	msgH := handler.NewMessageHandler(msgRepo, convRepo, receiptRepo, reactRepo)
	userH := handler.NewUserHandler(userRepo, presenceCache)
	pushH := handler.NewPushHandler(pushSubRepo, cfg.PushVAPIDPublicKey)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/public-key", pushH.PublicKey)

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(verifier))
		r.Use(middleware.TrackActivity(userRepo, presenceCache))

		r.Get("/api/users/me", userH.Me)
		r.Get("/api/users/search", userH.Search)
		r.Get("/api/users/{id}/presence", userH.Presence)

		r.Get("/api/conversations", convH.List)
		r.Post("/api/conversations/private", convH.CreatePrivate)
		r.Post("/api/conversations/group", convH.CreateGroup)
		r.Post("/api/conversations/join", convH.JoinByInvite)
		r.Get("/api/conversations/{id}", convH.Get)
		r.Post("/api/conversations/{id}/participants", convH.AddParticipant)
		r.Delete("/api/conversations/{id}/participants/{userId}", convH.RemoveParticipant)
		r.Get("/api/conversations/{id}/messages", msgH.History)

		r.Get("/api/messages/{id}/readers", msgH.Readers)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// runMigrations применяет встроенные миграции в лексикографическом порядке
// (001, 002, ...). Повторный запуск безопасен: все DDL через IF NOT EXISTS.
func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("list migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "conversa"
		password = "conversa_secret"
		database = "conversa"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// best-effort: without a .env file the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-go")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("database config: %v", err)
	}

	sqlDB, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	if dbCfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(migrateCtx, sqlDB)
		cancel()
		if err != nil {
			sugar.Fatalf("db migrate: %v", err)
		}
		sugar.Info("database migrations applied")
	}

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	hasher, err := user.NewHasher(cfg.PasswordAlgo)
	if err != nil {
		sugar.Fatalf("password hasher: %v", err)
	}
	codec := auth.NewTokenCodec(auth.SigningConfig{
		Secret:              []byte(cfg.JWT.Secret),
		Issuer:              cfg.JWT.Issuer,
		Audience:            cfg.JWT.Audience,
		AccessTokenLifetime: cfg.JWT.AccessTokenLifetime(),
	})
	svc := auth.NewService(userrepo.NewUserRepo(sqlxDB), hasher, codec, cfg.JWT.RefreshTokenLifetime(), sugar)
	handler := router.RegisterRoutes(sugar, cfg.BasePath, auth.NewHandler(svc, sugar), svc, sqlDB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr, "base_path", cfg.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

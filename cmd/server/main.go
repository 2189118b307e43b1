package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/api"
	"github.com/adeelraza/floodcoord/internal/app"
	"github.com/adeelraza/floodcoord/internal/app/maintenance"
	iauth "github.com/adeelraza/floodcoord/internal/auth"
	"github.com/adeelraza/floodcoord/internal/cache"
	"github.com/adeelraza/floodcoord/internal/database"
	"github.com/adeelraza/floodcoord/internal/payment"
	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/logger"
	"github.com/adeelraza/floodcoord/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("floodcoord-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store, closeStore := buildCacheStore(cfg, db, log)
	defer closeStore()

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	challengeService, err := iauth.NewChallengeService(store, iauth.ChallengeConfig{
		TTL:        cfg.Auth.OTP.TTL,
		Digits:     cfg.Auth.OTP.Digits,
		MasterCode: cfg.Auth.OTP.MasterCode,
	})
	if err != nil {
		return fmt.Errorf("initialise challenge service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	var provider payment.Provider
	if cfg.Payments.Stripe.Enabled {
		stripeProvider, stripeErr := payment.NewStripeProvider(payment.StripeConfig{
			APIKey:        cfg.Payments.Stripe.APIKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
			Currency:      cfg.Payments.Stripe.Currency,
			SuccessURL:    cfg.Payments.Stripe.SuccessURL,
			CancelURL:     cfg.Payments.Stripe.CancelURL,
			Timeout:       cfg.Payments.Stripe.Timeout,
		})
		if stripeErr != nil {
			return fmt.Errorf("initialise stripe provider: %w", stripeErr)
		}
		provider = stripeProvider
		log.Info("stripe checkout enabled")
	} else {
		log.Warn("payments disabled; cash donations will be rejected")
	}

	userService, err := services.NewUserService(db, services.WithBcryptCost(cfg.Auth.BcryptCost))
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}

	authService, err := services.NewAuthService(db, userService, challengeService, jwtService, mailer)
	if err != nil {
		return fmt.Errorf("initialise auth service: %w", err)
	}

	requestService, err := services.NewHelpRequestService(db)
	if err != nil {
		return fmt.Errorf("initialise help request service: %w", err)
	}

	donationService, err := services.NewDonationService(db, provider)
	if err != nil {
		return fmt.Errorf("initialise donation service: %w", err)
	}

	invitationService, err := services.NewInvitationService(db, userService, mailer,
		services.WithInvitationTTL(cfg.Invitations.TTL),
		services.WithAcceptURL(cfg.Invitations.AcceptURL),
	)
	if err != nil {
		return fmt.Errorf("initialise invitation service: %w", err)
	}

	geographyService, err := services.NewGeographyService(db)
	if err != nil {
		return fmt.Errorf("initialise geography service: %w", err)
	}

	var cleaner *maintenance.Cleaner
	if cfg.Maintenance.Enabled {
		cleaner = maintenance.NewCleaner(db, invitationService,
			maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(api.Dependencies{
		DB:          db,
		Config:      cfg,
		JWT:         jwtService,
		Store:       store,
		Auth:        authService,
		Users:       userService,
		Requests:    requestService,
		Donations:   donationService,
		Invitations: invitationService,
		Geography:   geographyService,
		Provider:    provider,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	if cfg.Payments.Stripe.Enabled {
		if strings.TrimSpace(cfg.Payments.Stripe.APIKey) == "" {
			return errors.New("payments.stripe.api_key must be configured when stripe is enabled")
		}
		if strings.TrimSpace(cfg.Payments.Stripe.WebhookSecret) == "" {
			return errors.New("payments.stripe.webhook_secret must be configured when stripe is enabled")
		}
	}

	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	admin := database.BootstrapAdmin{
		Email:    cfg.Auth.Bootstrap.Email,
		Username: cfg.Auth.Bootstrap.Username,
		Password: cfg.Auth.Bootstrap.Password,
	}
	if err := database.AutoMigrateAndSeed(db, admin); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

// buildCacheStore picks the configured store backend. Login challenges and
// rate limits live here; memory is only correct for a single instance.
func buildCacheStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) (cache.Store, func()) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) {
	case "redis":
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if err != nil {
			log.Warn("redis unavailable; falling back to database-backed store", zap.Error(err))
			return cache.NewDatabaseStore(db), func() {}
		}
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		return client, func() { _ = client.Close() }

	case "database":
		return cache.NewDatabaseStore(db), func() {}

	default:
		store := cache.NewMemoryStore()
		return store, func() { _ = store.Close() }
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to access database handle during shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

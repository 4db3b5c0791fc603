package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/config"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/database"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/server"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/summaries"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/users"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedlog-api",
		Short: "Feedlog pet food and meal log backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMintSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString(config.KeyHTTPAddress), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice(config.KeyAllowedOrigins), "CORS allowed origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString(config.KeyDatabaseDriver), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString(config.KeyDatabasePath), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString(config.KeyLogLevel), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString(config.KeyLogFormat), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("cache-backend", defaults.GetString(config.KeyCacheBackend), "Summary cache backend (memory, redis)")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for the summary cache")

	bindFlag(cmd, config.KeyHTTPAddress, "http-address")
	bindFlag(cmd, config.KeyAllowedOrigins, "allowed-origins")
	bindFlag(cmd, config.KeyDatabaseDriver, "database-driver")
	bindFlag(cmd, config.KeyDatabasePath, "database-path")
	bindFlag(cmd, config.KeyDatabaseDSN, "database-dsn")
	bindFlag(cmd, config.KeyLogLevel, "log-level")
	bindFlag(cmd, config.KeyLogFormat, "log-format")
	bindFlag(cmd, config.KeySigningSecret, "signing-secret")
	bindFlag(cmd, config.KeyCacheBackend, "cache-backend")
	bindFlag(cmd, config.KeyCacheRedisURL, "redis-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	realtime := server.NewRealtimeDispatcher()
	feedingService, err := feeding.NewService(feeding.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: feeding.NewUUIDProvider(),
		Logger:     logger,
		Listeners:  []feeding.ChangeListener{realtime},
	})
	if err != nil {
		return err
	}

	store, closeStore, err := newSummaryStore(ctx, appConfig)
	if err != nil {
		return err
	}
	defer closeStore()
	summaryCache, err := summaries.NewCache(summaries.Config{
		Store:  store,
		Loader: feedingService,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	feedingService.AddListener(summaryCache)

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	members, err := users.NewService(users.ServiceConfig{
		Database:      db,
		Clock:         time.Now,
		Logger:        logger,
		AllowedEmails: appConfig.AllowedEmails,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Feeding:   feedingService,
		Summaries: summaryCache,
		Sessions:  sessionValidator,
		Members:   members,
		Validator: validation.New(validation.Options{AmountUnitRequired: appConfig.AmountUnitRequired}),
		Realtime:  realtime,
		HealthCheck: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		Logger:             logger,
		AllowedOrigins:     appConfig.AllowedOrigins,
		ExposeErrorDetails: appConfig.ExposeErrorDetails,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("cache_backend", appConfig.CacheBackend),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newSummaryStore(ctx context.Context, appConfig config.AppConfig) (summaries.Store, func(), error) {
	ttl := time.Duration(appConfig.CacheTTLSeconds) * time.Second
	if appConfig.CacheBackend != config.CacheRedis {
		return summaries.NewMemoryStore(ttl, time.Now), func() {}, nil
	}

	client, err := summaries.NewRedisClient(ctx, appConfig.CacheRedisURL)
	if err != nil {
		return nil, nil, err
	}
	store, err := summaries.NewRedisStore(client, ttl)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func newMintSessionCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint-session",
		Short: "Print a signed session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      userID,
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "cookie %s expires %s\n", appConfig.TAuthCookieName, expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "Session subject")
	cmd.Flags().StringVar(&email, "email", "", "Session email")
	cmd.Flags().StringVar(&displayName, "name", "", "Session display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Session lifetime")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

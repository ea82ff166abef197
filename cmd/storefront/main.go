package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/provider"
	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/config"
	"github.com/lumeracommerce/storefront/internal/customer"
	httpserver "github.com/lumeracommerce/storefront/internal/http"
	accountctrl "github.com/lumeracommerce/storefront/internal/http/controllers/account"
	authctrl "github.com/lumeracommerce/storefront/internal/http/controllers/auth"
	authsvc "github.com/lumeracommerce/storefront/internal/http/services/auth"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
	"github.com/lumeracommerce/storefront/internal/rate"
	"github.com/lumeracommerce/storefront/internal/security/secretbox"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Lumera storefront: customer auth and account surface",
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config file (env CONFIG_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "storefront",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	master, err := secretbox.ParseMasterKey(os.Getenv("SESSION_MASTER_KEY"))
	if err != nil {
		return fmt.Errorf("SESSION_MASTER_KEY: %w", err)
	}

	store, err := session.NewStore(master, session.CookieConfig{
		Domain:   cfg.Session.Domain,
		SameSite: cfg.Session.SameSite,
		Secure:   cfg.Session.Secure == nil || *cfg.Session.Secure,
		TTL:      cfg.SessionTTL(),
	})
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	endpoints := discovery.NewResolver(discovery.Config{
		OverrideAuthorize: cfg.Auth.Endpoints.Authorize,
		OverrideToken:     cfg.Auth.Endpoints.Token,
		OverrideLogout:    cfg.Auth.Endpoints.Logout,
		OverrideUserinfo:  cfg.Auth.Endpoints.Userinfo,
		AccountDomain:     cfg.Auth.AccountDomain,
		ShopID:            cfg.Auth.ShopID,
		TTL:               cfg.DiscoveryTTL(),
		Timeout:           cfg.HTTPTimeout(),
	}, nil)

	providerClient := provider.NewClient(provider.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURI:  cfg.Auth.RedirectURL,
		Timeout:      cfg.HTTPTimeout(),
	}, nil)

	customers := customer.NewClient(&http.Client{Timeout: cfg.HTTPTimeout()})

	manager := session.NewManager(store, endpoints, providerClient)
	sessions := session.NewResolver(manager, endpoints, customers)

	loginSvc := authsvc.NewLoginService(authsvc.LoginConfig{
		ClientID:    cfg.Auth.ClientID,
		RedirectURI: cfg.Auth.RedirectURL,
		Scopes:      cfg.Auth.Scopes,
	}, endpoints)
	callbackSvc := authsvc.NewCallbackService(endpoints, providerClient)
	logoutSvc := authsvc.NewLogoutService(endpoints, cfg.Auth.LogoutRedirectURL)

	var (
		limiter     rate.Limiter
		redisClient *rdb.Client
	)
	if cfg.Rate.Enabled {
		redisClient = rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
		limiter = rate.NewRedisLimiter(redisClient, cfg.Rate.Redis.Prefix, cfg.Rate.Login.Limit, cfg.LoginWindow())
		log.Info("login rate limiting enabled",
			logger.String("redis", cfg.Rate.Redis.Addr),
			logger.Int("limit", cfg.Rate.Login.Limit),
		)
	}

	metricsHandler, err := httpserver.RegisterMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Auth:           authctrl.NewControllers(loginSvc, callbackSvc, logoutSvc, store),
		Account:        accountctrl.NewMeController(sessions),
		MetricsHandler: metricsHandler,
		LoginLimiter:   limiter,
		ReadyCheck: func(ctx context.Context) error {
			if _, err := endpoints.Resolve(ctx); err != nil {
				return fmt.Errorf("discovery: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP forces a fresh discovery fetch after a provider-side change.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			endpoints.Invalidate()
			log.Info("discovery cache invalidated")
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info("server stopped")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

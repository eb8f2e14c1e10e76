// Command storefront-backend serves the cart, address and product REST
// resources the checkout engine talks to.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-checkout/internal/config"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/fakebackend"
	"github.com/nikolayk812/storefront-checkout/internal/logging"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/nikolayk812/storefront-checkout/internal/repository"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logging.New: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	carts, addresses, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	auth := fakebackend.NewAuthenticator(cfg.JWTSecret)

	demo := domain.Identity{UserID: 1, Username: "demo"}
	token, err := auth.IssueToken(demo, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("auth.IssueToken: %w", err)
	}
	logger.Info("demo credential issued", zap.String("username", demo.Username), zap.String("token", string(token)))

	if cfg.APIToken != "" {
		auth.Register(domain.Identity{UserID: demo.UserID, Username: demo.Username, Token: domain.Credential(cfg.APIToken)})
	}

	server := fakebackend.NewServer(seedCatalog(cfg), carts, addresses, auth, cfg.Currency, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront backend starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("srv.ListenAndServe: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("srv.Shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// openStores uses Postgres when POSTGRES_URL is set and process memory
// otherwise.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (port.CartRepository, port.AddressStore, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Info("using in-memory stores")
		return fakebackend.NewMemoryCartRepository(), fakebackend.NewMemoryAddressStore(), func() {}, nil
	}

	if err := repository.Migrate(cfg.PostgresURL, cfg.MigrationsPath); err != nil {
		return nil, nil, nil, fmt.Errorf("repository.Migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("pool.Ping: %w", err)
	}

	carts, err := repository.NewCart(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("repository.NewCart: %w", err)
	}

	addresses, err := repository.NewAddress(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("repository.NewAddress: %w", err)
	}

	logger.Info("using postgres stores")
	return carts, addresses, pool.Close, nil
}

func seedCatalog(cfg config.Config) *fakebackend.Catalog {
	price := func(amount string) domain.Money {
		return fakebackend.ParsePrice(amount, cfg.Currency)
	}

	return fakebackend.NewCatalog(
		fakebackend.Product{Name: "Wireless Headphones", Price: price("79.99"), Image: "/media/headphones.jpg", Stock: 25},
		fakebackend.Product{Name: "Mechanical Keyboard", Price: price("129.00"), Image: "/media/keyboard.jpg", Stock: 10},
		fakebackend.Product{Name: "USB-C Cable", Price: price("9.99"), Image: "/media/cable.jpg", Stock: 100},
		fakebackend.Product{Name: "Laptop Stand", Price: price("45.50"), Image: "/media/stand.jpg", Stock: 3},
	)
}
